package auth

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"agendly/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// --- Mock AdminDirectory ---

type mockAdminDirectory struct {
	mock.Mock
}

func (m *mockAdminDirectory) GetByUID(ctx context.Context, uid string) (*types.AdminRecord, error) {
	args := m.Called(ctx, uid)
	if rec := args.Get(0); rec != nil {
		return rec.(*types.AdminRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAdminDirectory) GetByEmail(ctx context.Context, email string) (*types.AdminRecord, error) {
	args := m.Called(ctx, email)
	if rec := args.Get(0); rec != nil {
		return rec.(*types.AdminRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func adminNotFound() error {
	return types.NewAppError(types.ErrCodeNotFoundAdmin, "admin record not found", nil)
}

// --- AllowlistCheck ---

func TestAllowlistCheck_NormalizesEntriesAndInput(t *testing.T) {
	check := NewAllowlistCheck([]string{"  Ops@Agendly.App ", ""})

	ok, err := check.Authorized(context.Background(), &Principal{Email: "OPS@agendly.app"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllowlistCheck_EmptyListGrantsNobody(t *testing.T) {
	check := NewAllowlistCheck(nil)

	ok, err := check.Authorized(context.Background(), &Principal{Email: "ops@agendly.app"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllowlistCheck_EmptyEmailDenied(t *testing.T) {
	check := NewAllowlistCheck([]string{"ops@agendly.app"})

	ok, err := check.Authorized(context.Background(), &Principal{UID: "usr_1"})
	require.NoError(t, err)
	assert.False(t, ok)
}

// --- DirectoryCheck ---

func TestDirectoryCheck_ActiveRecordAuthorizes(t *testing.T) {
	dir := &mockAdminDirectory{}
	dir.On("GetByUID", mock.Anything, "usr_1").Return(&types.AdminRecord{UID: "usr_1", Active: true}, nil)

	check := NewDirectoryCheck(dir)
	ok, err := check.Authorized(context.Background(), &Principal{UID: "usr_1", Email: "ops@agendly.app"})

	require.NoError(t, err)
	assert.True(t, ok)
	dir.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
}

func TestDirectoryCheck_InactiveRecordDenies(t *testing.T) {
	dir := &mockAdminDirectory{}
	dir.On("GetByUID", mock.Anything, "usr_1").Return(&types.AdminRecord{UID: "usr_1", Active: false}, nil)

	check := NewDirectoryCheck(dir)
	ok, err := check.Authorized(context.Background(), &Principal{UID: "usr_1"})

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDirectoryCheck_FallsBackToEmailLookup(t *testing.T) {
	dir := &mockAdminDirectory{}
	dir.On("GetByUID", mock.Anything, "usr_1").Return(nil, adminNotFound())
	dir.On("GetByEmail", mock.Anything, "ops@agendly.app").Return(&types.AdminRecord{UID: "usr_9", Active: true}, nil)

	check := NewDirectoryCheck(dir)
	ok, err := check.Authorized(context.Background(), &Principal{UID: "usr_1", Email: "ops@agendly.app"})

	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDirectoryCheck_AbsentRecordDeniesWithoutError(t *testing.T) {
	dir := &mockAdminDirectory{}
	dir.On("GetByUID", mock.Anything, "usr_1").Return(nil, adminNotFound())
	dir.On("GetByEmail", mock.Anything, "ops@agendly.app").Return(nil, adminNotFound())

	check := NewDirectoryCheck(dir)
	ok, err := check.Authorized(context.Background(), &Principal{UID: "usr_1", Email: "ops@agendly.app"})

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDirectoryCheck_DBErrorPropagates(t *testing.T) {
	dir := &mockAdminDirectory{}
	dir.On("GetByUID", mock.Anything, "usr_1").Return(nil, errors.New("connection refused"))

	check := NewDirectoryCheck(dir)
	_, err := check.Authorized(context.Background(), &Principal{UID: "usr_1"})

	assert.Error(t, err)
}

// --- ClaimCheck ---

func TestClaimCheck_LiteralTrueOnly(t *testing.T) {
	check := ClaimCheck{}

	ok, err := check.Authorized(context.Background(), &Principal{AdminClaim: true})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = check.Authorized(context.Background(), &Principal{AdminClaim: false})
	require.NoError(t, err)
	assert.False(t, ok)
}

// --- AdminAuthorizer ---

func TestAdminAuthorizer_AnySinglePassAuthorizes(t *testing.T) {
	allow := NewAllowlistCheck([]string{"ops@agendly.app"})
	authz := NewAdminAuthorizer(discardLogger(), allow, ClaimCheck{})

	err := authz.RequireAdmin(context.Background(), &Principal{
		Email:      "other@agendly.app",
		AdminClaim: true,
	})

	assert.NoError(t, err)
}

func TestAdminAuthorizer_NonePassingIsPermissionError(t *testing.T) {
	dir := &mockAdminDirectory{}
	dir.On("GetByUID", mock.Anything, "usr_1").Return(nil, adminNotFound())
	dir.On("GetByEmail", mock.Anything, "user@agendly.app").Return(nil, adminNotFound())

	authz := NewAdminAuthorizer(discardLogger(),
		NewAllowlistCheck([]string{"ops@agendly.app"}),
		NewDirectoryCheck(dir),
		ClaimCheck{},
	)

	err := authz.RequireAdmin(context.Background(), &Principal{
		UID:   "usr_1",
		Email: "user@agendly.app",
	})

	require.Error(t, err)
	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodePermissionAdmin, appErr.Code)
}

func TestAdminAuthorizer_NilPrincipalIsAuthError(t *testing.T) {
	authz := NewAdminAuthorizer(discardLogger(), ClaimCheck{})

	err := authz.RequireAdmin(context.Background(), nil)

	require.Error(t, err)
	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeAuthTokenMissing, appErr.Code)
}

func TestAdminAuthorizer_CheckErrorDoesNotBlockOtherChecks(t *testing.T) {
	dir := &mockAdminDirectory{}
	dir.On("GetByUID", mock.Anything, "usr_1").Return(nil, errors.New("connection refused"))

	authz := NewAdminAuthorizer(discardLogger(),
		NewDirectoryCheck(dir),
		ClaimCheck{},
	)

	err := authz.RequireAdmin(context.Background(), &Principal{UID: "usr_1", AdminClaim: true})

	assert.NoError(t, err)
}

// --- Diagnose ---

func TestDiagnose_FlagsDriftBetweenMechanisms(t *testing.T) {
	dir := &mockAdminDirectory{}
	dir.On("GetByUID", mock.Anything, "usr_1").Return(&types.AdminRecord{UID: "usr_1", Active: true}, nil)

	authz := NewAdminAuthorizer(discardLogger(),
		NewAllowlistCheck([]string{"other@agendly.app"}),
		NewDirectoryCheck(dir),
		ClaimCheck{},
	)

	diag := authz.Diagnose(context.Background(), &Principal{UID: "usr_1", Email: "ops@agendly.app"})

	assert.True(t, diag.Authorized)
	assert.True(t, diag.NeedsReconciliation)
	require.Len(t, diag.Verdicts, 3)
	assert.False(t, diag.Verdicts[0].Authorized)
	assert.True(t, diag.Verdicts[1].Authorized)
	assert.False(t, diag.Verdicts[2].Authorized)
}

func TestDiagnose_UnanimousGrantNeedsNoReconciliation(t *testing.T) {
	dir := &mockAdminDirectory{}
	dir.On("GetByUID", mock.Anything, "usr_1").Return(&types.AdminRecord{UID: "usr_1", Active: true}, nil)

	authz := NewAdminAuthorizer(discardLogger(),
		NewAllowlistCheck([]string{"ops@agendly.app"}),
		NewDirectoryCheck(dir),
		ClaimCheck{},
	)

	diag := authz.Diagnose(context.Background(), &Principal{
		UID:        "usr_1",
		Email:      "ops@agendly.app",
		AdminClaim: true,
	})

	assert.True(t, diag.Authorized)
	assert.False(t, diag.NeedsReconciliation)
}

func TestDiagnose_ErroredMechanismReportedNotCounted(t *testing.T) {
	dir := &mockAdminDirectory{}
	dir.On("GetByUID", mock.Anything, "usr_1").Return(nil, errors.New("connection refused"))

	authz := NewAdminAuthorizer(discardLogger(),
		NewDirectoryCheck(dir),
		ClaimCheck{},
	)

	diag := authz.Diagnose(context.Background(), &Principal{UID: "usr_1", AdminClaim: true})

	assert.True(t, diag.Authorized)
	assert.False(t, diag.NeedsReconciliation)
	require.Len(t, diag.Verdicts, 2)
	assert.NotEmpty(t, diag.Verdicts[0].Error)
}
