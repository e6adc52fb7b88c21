package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/dosewatch/pkg/logger"
)

func init() {
	_ = logger.Init()
}

var medicationColumns = []string{"id", "user_id", "patient", "name", "dosage", "schedule", "end_date"}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db, WithQueryTimeout(time.Second)), mock
}

func TestPostgresStore_ListActive(t *testing.T) {
	store, mock := newMockStore(t)
	end := time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM medications m JOIN users u ON u.id = m.user_id WHERE m.is_active").
		WillReturnRows(sqlmock.NewRows(medicationColumns).
			AddRow(int64(1), int64(7), "Jan", "Metformin", "500mg", []byte(`{"monday":{"enabled":true,"times":["08:00"]}}`), nil).
			AddRow(int64(2), int64(7), "Jan", "Broken", "", []byte(`{not json`), nil).
			AddRow(int64(3), int64(8), "Piet", "Aspirin", "80mg", []byte(`{}`), end))

	meds, err := store.ListActive(context.Background())

	require.NoError(t, err)
	require.Len(t, meds, 2)
	assert.Equal(t, int64(1), meds[0].ID)
	assert.Equal(t, "Jan", meds[0].PatientName)
	assert.True(t, meds[0].Active)
	assert.Equal(t, []string{"08:00"}, meds[0].Schedule["monday"].Times)
	assert.Nil(t, meds[0].EndDate)
	require.NotNil(t, meds[1].EndDate)
	assert.True(t, meds[1].EndDate.Equal(end))
	assert.NoError(t, mock.ExpectationsWereMet())
}

type warnRecorder struct {
	logger.Logger
	warnings []string
}

func (r *warnRecorder) Warn(_ context.Context, msg string, fields ...logger.Field) {
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			msg += ": " + err.Error()
		}
	}
	r.warnings = append(r.warnings, msg)
}

func TestPostgresStore_ListActive_ValidatesSchedules(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rec := &warnRecorder{Logger: logger.Get()}
	store := NewPostgresStore(db, WithLogger(rec))

	mock.ExpectQuery("FROM medications m").
		WillReturnRows(sqlmock.NewRows(medicationColumns).
			AddRow(int64(1), int64(7), "Jan", "Metformin", "", []byte(`{"monday":{"enabled":true,"times":["8h00","09:00"]},"funday":{}}`), nil))

	meds, err := store.ListActive(context.Background())

	require.NoError(t, err)
	require.Len(t, meds, 1, "a schedule with bad entries is still returned")
	require.Len(t, rec.warnings, 2)
	assert.Contains(t, rec.warnings[0], "funday")
	assert.Contains(t, rec.warnings[1], "8h00")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListActive_Error(t *testing.T) {
	store, mock := newMockStore(t)
	boom := errors.New("connection reset")

	mock.ExpectQuery("FROM medications m").WillReturnError(boom)

	_, err := store.ListActive(context.Background())

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindCaregiverOf(t *testing.T) {
	columns := []string{"id", "name", "email", "phone"}

	t.Run("email preferred", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("FROM users p JOIN users c ON c.id = p.caregiver_id WHERE p.id = \\$1").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(columns).AddRow(int64(10), "Ans", "ans@example.org", "+31612345678"))

		c, err := store.FindCaregiverOf(context.Background(), 7)

		require.NoError(t, err)
		assert.Equal(t, int64(10), c.ID)
		assert.Equal(t, "Ans", c.DisplayName)
		assert.Equal(t, "ans@example.org", c.Address)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("phone fallback", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("FROM users p").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(columns).AddRow(int64(10), "Ans", "", "+31612345678"))

		c, err := store.FindCaregiverOf(context.Background(), 7)

		require.NoError(t, err)
		assert.Equal(t, "+31612345678", c.Address)
	})

	t.Run("no caregiver", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("FROM users p").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(columns))

		_, err := store.FindCaregiverOf(context.Background(), 7)

		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("no contact", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("FROM users p").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(columns).AddRow(int64(10), "Ans", " ", ""))

		_, err := store.FindCaregiverOf(context.Background(), 7)

		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestPostgresStore_Exists(t *testing.T) {
	store, mock := newMockStore(t)
	since := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT EXISTS \\( SELECT 1 FROM intakes").
		WithArgs(int64(1), int64(7), "08:00", "8:00", since).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(1), int64(7), "20:00", "20:00", since).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(1), int64(7), "09:30", "9:30", since).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.Exists(context.Background(), 1, 7, "08:00", since)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(context.Background(), 1, 7, "20:00", since)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Exists(context.Background(), 1, 7, "9:30", since)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, Migrate(context.Background(), db))

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))
	assert.Error(t, Migrate(context.Background(), db))

	assert.NoError(t, mock.ExpectationsWereMet())
}
