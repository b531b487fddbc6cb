package consent

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/therapy-practice-api/internal/bookings"
	"github.com/wolfman30/therapy-practice-api/pkg/logging"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock
}

func TestRecordConsentNormalizesAndStores(t *testing.T) {
	repo, mock := newMockRepo(t)
	svc := NewService(repo, logging.Discard())
	fixed := time.Date(2026, 1, 10, 6, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	mock.ExpectExec("INSERT INTO consent_records").
		WithArgs(sqlmock.AnyArg(), "asha@example.com", "couples", "v2", pq.Array([]string{"confidentiality", "cancellation_policy"}), fixed).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec, err := svc.RecordConsent(context.Background(), " Asha@Example.com ", "Couples", "v2", []string{"confidentiality", " ", "cancellation_policy"})
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", rec.Email)
	assert.Equal(t, bookings.SessionCouples, rec.SessionType)
	assert.Len(t, rec.Acknowledgments, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordConsentValidation(t *testing.T) {
	repo, mock := newMockRepo(t)
	svc := NewService(repo, logging.Discard())
	ctx := context.Background()

	_, err := svc.RecordConsent(ctx, "not-an-email", "individual", "v1", []string{"ok"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.RecordConsent(ctx, "a@b.co", "group", "v1", []string{"ok"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.RecordConsent(ctx, "a@b.co", "individual", "", []string{"ok"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.RecordConsent(ctx, "a@b.co", "individual", "v1", []string{"  "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, mock.ExpectationsWereMet(), "nothing written for invalid input")
}

func TestHasConsent(t *testing.T) {
	repo, mock := newMockRepo(t)
	svc := NewService(repo, logging.Discard())
	at := time.Date(2026, 1, 10, 6, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT 1 FROM consent_records").
		WithArgs("asha@example.com", "individual", at).
		WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))
	ok, err := svc.HasConsent(context.Background(), "ASHA@example.com", bookings.SessionIndividual, at)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery("SELECT 1 FROM consent_records").
		WithArgs("asha@example.com", "family", at).
		WillReturnError(sql.ErrNoRows)
	ok, err = svc.HasConsent(context.Background(), "asha@example.com", bookings.SessionFamily, at)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.HasConsent(context.Background(), "", bookings.SessionFamily, at)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}
