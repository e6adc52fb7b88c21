package service

import (
	"context"
	"time"

	"github.com/okian/dosewatch/internal/adapters/repository"
	"github.com/okian/dosewatch/internal/domain/model"
)

// IntakeLookup answers whether a dose was already acted upon today.
type IntakeLookup struct {
	store repository.IntakeStore
	loc   *time.Location
}

// NewIntakeLookup reads intakes from store. Days start at midnight in loc.
func NewIntakeLookup(store repository.IntakeStore, loc *time.Location) *IntakeLookup {
	if loc == nil {
		loc = time.Local
	}
	return &IntakeLookup{store: store, loc: loc}
}

// Confirmed reports whether an intake exists for the dose since midnight
// of the dose's date.
func (l *IntakeLookup) Confirmed(ctx context.Context, dose model.DoseInstance) (bool, error) {
	return l.store.Exists(ctx, dose.MedicationID, dose.PatientID, dose.Slot, dose.Date.In(l.loc))
}
