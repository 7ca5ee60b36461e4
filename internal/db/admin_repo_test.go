package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"agendly/internal/types"
)

func TestAdminDirectoryRepo_GetByUID_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAdminDirectoryRepo(db)
	ctx := context.Background()

	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "user_ops1"
			*dest[1].(*string) = "ops@agendly.app"
			*dest[2].(*bool) = true
			*dest[3].(*time.Time) = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			return nil
		},
	}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"user_ops1"}).Return(row)

	rec, err := repo.GetByUID(ctx, "user_ops1")
	require.NoError(t, err)
	assert.Equal(t, "user_ops1", rec.UID)
	assert.True(t, rec.Active)
	db.AssertExpectations(t)
}

func TestAdminDirectoryRepo_GetByUID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAdminDirectoryRepo(db)
	ctx := context.Background()

	row := &mockRow{scanErr: pgx.ErrNoRows}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"user_nobody"}).Return(row)

	_, err := repo.GetByUID(ctx, "user_nobody")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundAdmin, appErr.Code)
	db.AssertExpectations(t)
}

func TestAdminDirectoryRepo_GetByEmail_NormalizesCase(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAdminDirectoryRepo(db)
	ctx := context.Background()

	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "user_ops1"
			*dest[1].(*string) = "ops@agendly.app"
			*dest[2].(*bool) = false
			*dest[3].(*time.Time) = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			return nil
		},
	}
	// The query must receive the lowercased, trimmed email.
	db.On("QueryRow", ctx, mock.AnythingOfType("string"),
		[]any{"ops@agendly.app"}).Return(row)

	rec, err := repo.GetByEmail(ctx, "  OPS@Agendly.App ")
	require.NoError(t, err)
	assert.False(t, rec.Active)
	db.AssertExpectations(t)
}

func TestAdminDirectoryRepo_SetActive_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAdminDirectoryRepo(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.SetActive(context.Background(), "user_nobody", false)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundAdmin, appErr.Code)
	db.AssertExpectations(t)
}

func TestAdminDirectoryRepo_Upsert_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAdminDirectoryRepo(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Upsert(context.Background(), &types.AdminRecord{
		UID:    "user_ops2",
		Email:  "Ops2@Agendly.App",
		Active: true,
	})
	require.NoError(t, err)
	db.AssertExpectations(t)
}
