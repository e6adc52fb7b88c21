package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/dosewatch/internal/domain/model"
	"github.com/okian/dosewatch/internal/domain/schedule"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	medications map[int64]model.Medication
	caregivers  map[int64]model.Caregiver // by patient
	intakes     []model.Intake
	failWith    error
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		medications: make(map[int64]model.Medication),
		caregivers:  make(map[int64]model.Caregiver),
	}
}

// AddMedication inserts or replaces a medication.
func (s *MemoryStore) AddMedication(m model.Medication) error {
	if m.ID == 0 || m.PatientID == 0 {
		return fmt.Errorf("%w: medication needs id and patient", ErrInvalidRecord)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.medications[m.ID] = m
	return nil
}

// SetCaregiver links a caregiver to a patient.
func (s *MemoryStore) SetCaregiver(patientID int64, c model.Caregiver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caregivers[patientID] = c
}

// RecordIntake stores an intake. A zero RecordedAt is set to now and the
// slot is kept in canonical form.
func (s *MemoryStore) RecordIntake(in model.Intake) {
	in.Slot = schedule.Canonical(in.Slot)
	if in.RecordedAt.IsZero() {
		in.RecordedAt = time.Now()
	}
	if in.Status == "" {
		in.Status = model.IntakeTaken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intakes = append(s.intakes, in)
}

// FailWith makes every read return err until called with nil.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *MemoryStore) ListActive(_ context.Context) ([]model.Medication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	out := make([]model.Medication, 0, len(s.medications))
	for _, m := range s.medications {
		if m.Active {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) FindCaregiverOf(_ context.Context, patientID int64) (model.Caregiver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return model.Caregiver{}, s.failWith
	}

	c, ok := s.caregivers[patientID]
	if !ok || strings.TrimSpace(c.Address) == "" {
		return model.Caregiver{}, fmt.Errorf("caregiver of patient %d: %w", patientID, ErrNotFound)
	}
	return c, nil
}

func (s *MemoryStore) Exists(_ context.Context, medicationID, patientID int64, slot string, since time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return false, s.failWith
	}

	slot = schedule.Canonical(slot)
	for _, in := range s.intakes {
		if in.MedicationID == medicationID && in.PatientID == patientID &&
			in.Slot == slot && !in.RecordedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}
