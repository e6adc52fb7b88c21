// Package model contains domain models passed between layers.
package model

import "time"

// Medication is a patient's medication with its weekly schedule.
type Medication struct {
	ID          int64
	PatientID   int64
	PatientName string // display label used in caregiver alerts
	Name        string
	Dosage      string
	Schedule    WeeklySchedule
	Active      bool
	EndDate     *time.Time // optional; no doses after this date
}

// Label returns the human-readable medication label, e.g. "Metformin 500mg".
func (m Medication) Label() string {
	if m.Dosage == "" {
		return m.Name
	}
	return m.Name + " " + m.Dosage
}

// ScheduledOn reports whether the medication can produce doses on d.
// Inactive medications and medications past their end date never do.
func (m Medication) ScheduledOn(d Date) bool {
	if !m.Active {
		return false
	}
	if m.EndDate != nil && DateOf(*m.EndDate).Before(d) {
		return false
	}
	return true
}

// WeeklySchedule maps a weekday name ("monday" … "sunday") to its doses.
type WeeklySchedule map[string]DaySchedule

// DaySchedule lists the "HH:MM" slots of one weekday.
type DaySchedule struct {
	Enabled bool     `json:"enabled"`
	Times   []string `json:"times"`
}

// Caregiver is the contact alerted about a patient's missed doses.
type Caregiver struct {
	ID          int64
	DisplayName string
	Address     string // e-mail address or phone number
}

// IntakeStatus tells how the patient acted on a dose.
type IntakeStatus string

// Intake statuses.
const (
	IntakeTaken   IntakeStatus = "taken"
	IntakeSkipped IntakeStatus = "skipped"
)

// Intake is evidence that a dose slot was acted upon.
type Intake struct {
	MedicationID int64
	PatientID    int64
	Slot         string
	Status       IntakeStatus
	RecordedAt   time.Time
}
