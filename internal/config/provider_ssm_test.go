package config

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// mockSSMClient records GetParameters calls and returns canned values.
type mockSSMClient struct {
	values    map[string]string
	invalid   []string
	err       error
	calls     [][]string
	decrypted bool
}

func (m *mockSSMClient) GetParameters(_ context.Context, params *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	m.calls = append(m.calls, params.Names)
	if params.WithDecryption != nil {
		m.decrypted = *params.WithDecryption
	}
	if m.err != nil {
		return nil, m.err
	}

	out := &ssm.GetParametersOutput{}
	for _, name := range params.Names {
		if v, ok := m.values[name]; ok {
			out.Parameters = append(out.Parameters, ssmtypes.Parameter{
				Name:  aws.String(name),
				Value: aws.String(v),
			})
		}
	}
	out.InvalidParameters = append(out.InvalidParameters, m.invalid...)
	return out, nil
}

// TestSSMProviderSatisfiesSecretProvider verifies that SSMProvider
// implements the SecretProvider interface at compile time.
func TestSSMProviderSatisfiesSecretProvider(t *testing.T) {
	var _ SecretProvider = (*SSMProvider)(nil)
	var _ SecretProvider = NewSSMProvider("us-east-1")
}

// TestSSMProviderResolvesWithDecryption verifies that parameters are fetched
// with decryption enabled and returned keyed by SSM path.
func TestSSMProviderResolvesWithDecryption(t *testing.T) {
	client := &mockSSMClient{
		values: map[string]string{
			"/prod/agendly/database/url": "postgres://resolved/db",
			"/prod/agendly/cron/secret":  "cron-secret-value",
		},
	}
	provider := newSSMProviderWithClient("us-east-1", client)

	result, err := provider.GetParametersBatch(context.Background(),
		[]string{"/prod/agendly/database/url", "/prod/agendly/cron/secret"})
	if err != nil {
		t.Fatalf("GetParametersBatch returned error: %v", err)
	}

	if result["/prod/agendly/database/url"] != "postgres://resolved/db" {
		t.Errorf("database url = %q, want resolved value", result["/prod/agendly/database/url"])
	}
	if result["/prod/agendly/cron/secret"] != "cron-secret-value" {
		t.Errorf("cron secret = %q, want resolved value", result["/prod/agendly/cron/secret"])
	}
	if !client.decrypted {
		t.Error("expected WithDecryption=true on GetParameters call")
	}
	if len(client.calls) != 1 {
		t.Errorf("expected 1 API call for 2 keys, got %d", len(client.calls))
	}
}

// TestSSMProviderBatchesByAPILimit verifies that requests for more than 10
// parameters are split into batches of at most 10.
func TestSSMProviderBatchesByAPILimit(t *testing.T) {
	values := make(map[string]string)
	var keys []string
	for i := 0; i < 23; i++ {
		path := fmt.Sprintf("/prod/agendly/param/%02d", i)
		values[path] = fmt.Sprintf("value-%02d", i)
		keys = append(keys, path)
	}

	client := &mockSSMClient{values: values}
	provider := newSSMProviderWithClient("us-east-1", client)

	result, err := provider.GetParametersBatch(context.Background(), keys)
	if err != nil {
		t.Fatalf("GetParametersBatch returned error: %v", err)
	}

	if len(result) != 23 {
		t.Errorf("len(result) = %d, want 23", len(result))
	}
	if len(client.calls) != 3 {
		t.Fatalf("expected 3 batch calls (10+10+3), got %d", len(client.calls))
	}
	for i, call := range client.calls {
		if len(call) > ssmMaxBatchSize {
			t.Errorf("batch %d has %d keys, exceeds limit of %d", i, len(call), ssmMaxBatchSize)
		}
	}
}

// TestSSMProviderInvalidParameters verifies that unknown parameter names
// surface as an error instead of being silently dropped.
func TestSSMProviderInvalidParameters(t *testing.T) {
	client := &mockSSMClient{
		values:  map[string]string{"/prod/agendly/known": "v"},
		invalid: []string{"/prod/agendly/unknown"},
	}
	provider := newSSMProviderWithClient("us-east-1", client)

	_, err := provider.GetParametersBatch(context.Background(),
		[]string{"/prod/agendly/known", "/prod/agendly/unknown"})
	if err == nil {
		t.Fatal("expected error for invalid parameters, got nil")
	}
	if !strings.Contains(err.Error(), "/prod/agendly/unknown") {
		t.Errorf("error should name the invalid parameter, got: %v", err)
	}
}

// TestSSMProviderEmptyKeysReturnsEmptyMap verifies that calling
// GetParametersBatch with no keys returns an empty map without touching
// the API.
func TestSSMProviderEmptyKeysReturnsEmptyMap(t *testing.T) {
	client := &mockSSMClient{}
	provider := newSSMProviderWithClient("us-east-1", client)

	result, err := provider.GetParametersBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetParametersBatch with nil keys returned unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected empty result for nil keys, got %v", result)
	}
	if len(client.calls) != 0 {
		t.Errorf("expected no API calls for nil keys, got %d", len(client.calls))
	}
}

// TestSSMProviderAPIError verifies that client errors are wrapped with batch
// context and propagated.
func TestSSMProviderAPIError(t *testing.T) {
	client := &mockSSMClient{err: fmt.Errorf("throttled")}
	provider := newSSMProviderWithClient("us-east-1", client)

	_, err := provider.GetParametersBatch(context.Background(), []string{"/prod/agendly/x"})
	if err == nil {
		t.Fatal("expected error from failing client, got nil")
	}
	if !strings.Contains(err.Error(), "throttled") {
		t.Errorf("error should wrap client error, got: %v", err)
	}
}

// TestSSMProviderContextCancellation verifies that a cancelled context stops
// batch processing.
func TestSSMProviderContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &mockSSMClient{values: map[string]string{"/prod/agendly/x": "v"}}
	provider := newSSMProviderWithClient("us-east-1", client)

	_, err := provider.GetParametersBatch(ctx, []string{"/prod/agendly/x"})
	if err == nil {
		t.Fatal("expected error with cancelled context, got nil")
	}
}

// TestNewSSMProviderStoresRegion verifies that the constructor correctly
// stores the provided region.
func TestNewSSMProviderStoresRegion(t *testing.T) {
	provider := NewSSMProvider("sa-east-1")
	if provider.region != "sa-east-1" {
		t.Errorf("provider.region = %q, want %q", provider.region, "sa-east-1")
	}
}
