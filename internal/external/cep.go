package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"agendly/internal/security"
	"agendly/internal/types"
)

// Address is the normalized result of a postal-code lookup.
type Address struct {
	PostalCode   string `json:"postal_code"`
	Street       string `json:"street"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
}

// CEPClientConfig holds the configuration for creating a CEPClient.
type CEPClientConfig struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
}

// CEPClient resolves Brazilian postal codes (CEP) through the ViaCEP API.
// Signup uses it to prefill the tenant's address from the postal code.
type CEPClient struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger
}

// NewCEPClient creates a CEPClient.
func NewCEPClient(cfg CEPClientConfig) *CEPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		security.NewSafeHTTPClient(timeout, 3),
		"cep-lookup",
		RetryPolicy{
			MaxRetries: 1,
			MinWait:    250 * time.Millisecond,
			MaxWait:    time.Second,
		},
		"Agendly/1.0",
	)

	return &CEPClient{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// NewCEPClientWithBase creates a CEPClient over a pre-configured BaseClient.
func NewCEPClientWithBase(base *BaseClient, baseURL string, logger *slog.Logger) *CEPClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &CEPClient{
		base:    base,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// viaCEPResponse is the ViaCEP JSON payload. A lookup miss comes back as
// HTTP 200 with {"erro": true}.
type viaCEPResponse struct {
	CEP          string `json:"cep"`
	Street       string `json:"logradouro"`
	Neighborhood string `json:"bairro"`
	City         string `json:"localidade"`
	State        string `json:"uf"`
	Erro         bool   `json:"erro"`
}

// Lookup resolves a postal code to an address. The code must be exactly
// eight digits after stripping the conventional hyphen.
func (c *CEPClient) Lookup(ctx context.Context, cep string) (*Address, error) {
	normalized, err := NormalizeCEP(cep)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/ws/%s/json/", c.baseURL, normalized), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.base.Do(req)
	if err != nil {
		if appErr, ok := err.(*types.AppError); ok && appErr.Code == types.ErrCodeUpstreamUnavailable {
			return nil, types.NewAppError(types.ErrCodeUpstreamAddressLookup, "address lookup service unavailable", appErr.Err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	// ViaCEP answers 400 for malformed codes that slip past local checks.
	if resp.StatusCode == http.StatusBadRequest {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidCEP, fmt.Sprintf("postal code %q rejected by lookup service", cep), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(types.ErrCodeUpstreamAddressLookup, fmt.Sprintf("address lookup returned status %d", resp.StatusCode), nil)
	}

	var payload viaCEPResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamAddressLookup, "failed to decode address lookup response", err)
	}
	if payload.Erro {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidCEP, fmt.Sprintf("postal code %q not found", cep), nil)
	}

	return &Address{
		PostalCode:   payload.CEP,
		Street:       payload.Street,
		Neighborhood: payload.Neighborhood,
		City:         payload.City,
		State:        payload.State,
	}, nil
}

// NormalizeCEP strips the conventional hyphen and validates that the code
// is exactly eight digits.
func NormalizeCEP(cep string) (string, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(cep), "-", "")
	if len(normalized) != 8 {
		return "", types.NewAppError(types.ErrCodeValidationInvalidCEP, fmt.Sprintf("postal code %q must have exactly 8 digits", cep), nil)
	}
	for _, r := range normalized {
		if r < '0' || r > '9' {
			return "", types.NewAppError(types.ErrCodeValidationInvalidCEP, fmt.Sprintf("postal code %q must be numeric", cep), nil)
		}
	}
	return normalized, nil
}
