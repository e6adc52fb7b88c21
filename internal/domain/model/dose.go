package model

import (
	"strconv"
	"time"
)

// DoseInstance identifies one expected dose: a medication, its patient,
// a calendar date and an "HH:MM" slot. It is comparable and used as the
// dedup key and the intake lookup identity.
type DoseInstance struct {
	MedicationID int64
	PatientID    int64
	Date         Date
	Slot         string
}

func (d DoseInstance) String() string {
	return strconv.FormatInt(d.MedicationID, 10) + "/" + strconv.FormatInt(d.PatientID, 10) + "/" + d.Date.String() + "/" + d.Slot
}

// Alert is a missed-dose notification addressed to a caregiver.
type Alert struct {
	Dose            DoseInstance
	Caregiver       Caregiver
	PatientLabel    string
	MedicationLabel string
	ScheduledAt     time.Time
	ObservedAt      time.Time
}
