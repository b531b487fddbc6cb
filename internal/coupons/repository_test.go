package coupons

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var couponColumnNames = []string{
	"id", "code", "discount_type", "discount_value", "min_amount_minor",
	"valid_from", "valid_until", "max_uses", "used_count", "is_active", "created_at", "updated_at",
}

func TestRepositoryGetByCode(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newRepositoryWithQuerier(mock)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := now.Add(30 * 24 * time.Hour)
	maxUses := 100

	mock.ExpectQuery("SELECT .* FROM coupons WHERE code").WithArgs("WELCOME10").
		WillReturnRows(pgxmock.NewRows(couponColumnNames).
			AddRow("c-1", "WELCOME10", "percent", int64(10), int64(0), (*time.Time)(nil), &until, &maxUses, 4, true, now, now))

	c, err := repo.GetByCode(context.Background(), "WELCOME10")
	require.NoError(t, err)
	assert.Equal(t, DiscountPercent, c.DiscountType)
	assert.Nil(t, c.ValidFrom)
	require.NotNil(t, c.ValidUntil)
	require.NotNil(t, c.MaxUses)
	assert.Equal(t, 100, *c.MaxUses)
	assert.Equal(t, 4, c.UsedCount)

	mock.ExpectQuery("SELECT .* FROM coupons WHERE code").WithArgs("NOPE").WillReturnError(pgx.ErrNoRows)
	_, err = repo.GetByCode(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryInsertDuplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newRepositoryWithQuerier(mock)
	c := &Coupon{ID: "c-1", Code: "WELCOME10", DiscountType: DiscountPercent, DiscountValue: 10, IsActive: true, CreatedAt: time.Now()}

	mock.ExpectExec("INSERT INTO coupons").
		WithArgs("c-1", "WELCOME10", "percent", int64(10), int64(0), (*time.Time)(nil), (*time.Time)(nil), (*int)(nil), true, pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err = repo.Insert(context.Background(), c)
	assert.ErrorIs(t, err, ErrDuplicateCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryRedeemReportsWhetherCounted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newRepositoryWithQuerier(mock)

	mock.ExpectExec("INSERT INTO coupon_redemptions").WithArgs("WELCOME10", "pay-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := repo.Redeem(context.Background(), "WELCOME10", "pay-1")
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec("INSERT INTO coupon_redemptions").WithArgs("WELCOME10", "pay-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	ok, err = repo.Redeem(context.Background(), "WELCOME10", "pay-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositorySetActiveMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newRepositoryWithQuerier(mock)
	mock.ExpectExec("UPDATE coupons SET is_active").WithArgs("GONE", false, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.SetActive(context.Background(), "GONE", false, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryUpdateMapsCheckViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newRepositoryWithQuerier(mock)
	maxUses := 1
	mock.ExpectQuery("UPDATE coupons").
		WithArgs("ONCE", "fixed", int64(500), int64(0), (*time.Time)(nil), (*time.Time)(nil), &maxUses, true, pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23514"})

	_, err = repo.Update(context.Background(), &Coupon{Code: "ONCE", DiscountType: DiscountFixed, DiscountValue: 500, MaxUses: &maxUses, IsActive: true, UpdatedAt: time.Now()})
	assert.ErrorIs(t, err, ErrInvalidInput)
	require.NoError(t, mock.ExpectationsWereMet())
}
