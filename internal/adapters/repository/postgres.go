package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/okian/dosewatch/internal/domain/model"
	"github.com/okian/dosewatch/internal/domain/schedule"
	"github.com/okian/dosewatch/pkg/logger"
)

const defaultQueryTimeout = 5 * time.Second

// Schema creates the tables the engine reads. Patients and caregivers are
// both users; a patient points at its caregiver through caregiver_id.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id           BIGSERIAL PRIMARY KEY,
	username     TEXT NOT NULL UNIQUE,
	full_name    TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL DEFAULT '',
	phone        TEXT NOT NULL DEFAULT '',
	caregiver_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS medications (
	id         BIGSERIAL PRIMARY KEY,
	user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	dosage     TEXT NOT NULL DEFAULT '',
	schedule   JSONB NOT NULL DEFAULT '{}',
	is_active  BOOLEAN NOT NULL DEFAULT TRUE,
	end_date   DATE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS intakes (
	id            BIGSERIAL PRIMARY KEY,
	medication_id BIGINT NOT NULL REFERENCES medications(id) ON DELETE CASCADE,
	user_id       BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	slot          TEXT NOT NULL,
	status        TEXT NOT NULL CHECK (status IN ('taken', 'skipped')),
	recorded_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS intakes_lookup_idx
	ON intakes (medication_id, user_id, slot, recorded_at);
`

// Open opens a pgx-backed connection pool and checks it is reachable.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate applies Schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// PostgresStore implements Store on database/sql.
type PostgresStore struct {
	db           *sql.DB
	queryTimeout time.Duration
	log          logger.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps db.
func NewPostgresStore(db *sql.DB, opts ...Option) *PostgresStore {
	s := &PostgresStore{db: db, queryTimeout: defaultQueryTimeout}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("repository")
	}
	return s
}

// ListActive skips rows whose schedule is not valid JSON. Schedules with
// unknown weekdays or malformed slots are kept and logged.
func (s *PostgresStore) ListActive(ctx context.Context) ([]model.Medication, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			m.id, m.user_id, COALESCE(NULLIF(u.full_name, ''), u.username),
			m.name, m.dosage, m.schedule, m.end_date
		FROM medications m
		JOIN users u ON u.id = m.user_id
		WHERE m.is_active
		ORDER BY m.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Medication
	for rows.Next() {
		var m model.Medication
		var raw []byte
		var endDate sql.NullTime
		if err := rows.Scan(&m.ID, &m.PatientID, &m.PatientName, &m.Name, &m.Dosage, &raw, &endDate); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &m.Schedule); err != nil {
			s.log.Warn(ctx, "medication schedule unreadable, skipping",
				logger.Int64("medication_id", m.ID), logger.Error(err))
			continue
		}
		for _, problem := range schedule.Validate(m.Schedule) {
			s.log.Warn(ctx, "medication schedule has an unusable entry",
				logger.Int64("medication_id", m.ID), logger.Error(problem))
		}
		m.Active = true
		if endDate.Valid {
			t := endDate.Time
			m.EndDate = &t
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// FindCaregiverOf prefers the caregiver's e-mail and falls back to the phone.
func (s *PostgresStore) FindCaregiverOf(ctx context.Context, patientID int64) (model.Caregiver, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT c.id, COALESCE(NULLIF(c.full_name, ''), c.username), c.email, c.phone
		FROM users p
		JOIN users c ON c.id = p.caregiver_id
		WHERE p.id = $1
	`, patientID)

	var c model.Caregiver
	var email, phone string
	if err := row.Scan(&c.ID, &c.DisplayName, &email, &phone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Caregiver{}, fmt.Errorf("caregiver of patient %d: %w", patientID, ErrNotFound)
		}
		return model.Caregiver{}, err
	}

	c.Address = strings.TrimSpace(email)
	if c.Address == "" {
		c.Address = strings.TrimSpace(phone)
	}
	if c.Address == "" {
		return model.Caregiver{}, fmt.Errorf("caregiver %d has no contact: %w", c.ID, ErrNotFound)
	}
	return c, nil
}

// Exists matches the slot in both its padded and unpadded spelling, since
// intakes are written by clients that may store "8:00" for "08:00".
func (s *PostgresStore) Exists(ctx context.Context, medicationID, patientID int64, slot string, since time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	padded := schedule.Canonical(slot)
	short := padded
	if len(padded) == len("00:00") && padded[0] == '0' {
		short = padded[1:]
	}

	var ok bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM intakes
			WHERE medication_id = $1 AND user_id = $2 AND slot IN ($3, $4) AND recorded_at >= $5
		)
	`, medicationID, patientID, padded, short, since).Scan(&ok)
	if err != nil {
		return false, err
	}
	return ok, nil
}
