// Package repository reads medications, caregivers and intakes.
package repository

import (
	"context"
	"time"

	"github.com/okian/dosewatch/internal/domain/model"
)

// MedicationStore lists what should be taken and who to tell when it is not.
type MedicationStore interface {
	// ListActive returns every medication flagged active. End dates are
	// not applied here; callers check Medication.ScheduledOn.
	ListActive(ctx context.Context) ([]model.Medication, error)

	// FindCaregiverOf returns the caregiver linked to a patient.
	// Returns ErrNotFound if there is none or it has no contact address.
	FindCaregiverOf(ctx context.Context, patientID int64) (model.Caregiver, error)
}

// IntakeStore answers whether a dose slot was acted upon.
type IntakeStore interface {
	// Exists reports whether an intake (taken or skipped) was recorded for
	// the medication, patient and slot at or after since.
	Exists(ctx context.Context, medicationID, patientID int64, slot string, since time.Time) (bool, error)
}

// Store is the full read surface the engine needs.
type Store interface {
	MedicationStore
	IntakeStore
}
