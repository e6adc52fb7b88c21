package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/dosewatch/internal/domain/model"
	"github.com/okian/dosewatch/internal/domain/schedule"
	"github.com/okian/dosewatch/pkg/logger"
)

// Fixtures is the YAML layout accepted by LoadFixtures:
//
//	patients:
//	  - id: 1
//	    name: Jan
//	    caregiver: {id: 10, name: Ans, address: ans@example.org}
//	    medications:
//	      - id: 100
//	        name: Metformin
//	        dosage: 500mg
//	        schedule:
//	          monday: {enabled: true, times: ["08:00", "20:00"]}
type Fixtures struct {
	Patients []FixturePatient `koanf:"patients"`
}

// FixturePatient is one patient with its caregiver and medications.
type FixturePatient struct {
	ID          int64               `koanf:"id"`
	Name        string              `koanf:"name"`
	Caregiver   *FixtureCaregiver   `koanf:"caregiver"`
	Medications []FixtureMedication `koanf:"medications"`
}

// FixtureCaregiver is the contact of a FixturePatient.
type FixtureCaregiver struct {
	ID      int64  `koanf:"id"`
	Name    string `koanf:"name"`
	Address string `koanf:"address"`
}

// FixtureMedication is one medication of a FixturePatient.
type FixtureMedication struct {
	ID       int64                `koanf:"id"`
	Name     string               `koanf:"name"`
	Dosage   string               `koanf:"dosage"`
	Inactive bool                 `koanf:"inactive"`
	EndDate  string               `koanf:"end_date"`
	Schedule model.WeeklySchedule `koanf:"schedule"`
}

// LoadFixtures seeds s from a YAML file and returns how many medications
// were added.
func LoadFixtures(s *MemoryStore, path string) (int, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrFixturesFailed, path, err)
	}

	var f Fixtures
	if err := k.UnmarshalWithConf("", &f, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrFixturesFailed, path, err)
	}
	return f.Apply(s)
}

// Apply writes the fixtures into s. Schedule problems are logged, not fatal.
func (f Fixtures) Apply(s *MemoryStore) (int, error) {
	log := logger.Get().Named("fixtures")
	added := 0
	for _, p := range f.Patients {
		if p.Caregiver != nil {
			s.SetCaregiver(p.ID, model.Caregiver{
				ID:          p.Caregiver.ID,
				DisplayName: p.Caregiver.Name,
				Address:     p.Caregiver.Address,
			})
		}
		for _, fm := range p.Medications {
			m := model.Medication{
				ID:          fm.ID,
				PatientID:   p.ID,
				PatientName: p.Name,
				Name:        fm.Name,
				Dosage:      fm.Dosage,
				Schedule:    fm.Schedule,
				Active:      !fm.Inactive,
			}
			if fm.EndDate != "" {
				d, err := model.ParseDate(fm.EndDate)
				if err != nil {
					return added, fmt.Errorf("%w: medication %d: %w", ErrFixturesFailed, fm.ID, err)
				}
				end := d.In(time.UTC)
				m.EndDate = &end
			}
			for _, problem := range schedule.Validate(fm.Schedule) {
				log.Warn(context.Background(), "medication schedule has an unusable entry",
					logger.Int64("medication_id", fm.ID), logger.Error(problem))
			}
			if err := s.AddMedication(m); err != nil {
				return added, fmt.Errorf("%w: %w", ErrFixturesFailed, err)
			}
			added++
		}
	}
	return added, nil
}
