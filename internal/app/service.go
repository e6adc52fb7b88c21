// Package service runs the missed-dose detection cycle and owns the
// components that deliver caregiver alerts.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/dosewatch/internal/adapters/mq/queue"
	"github.com/okian/dosewatch/internal/adapters/mq/worker"
	"github.com/okian/dosewatch/internal/adapters/repository"
	"github.com/okian/dosewatch/internal/domain/clock"
	"github.com/okian/dosewatch/internal/domain/dedupe"
	"github.com/okian/dosewatch/internal/domain/model"
	"github.com/okian/dosewatch/internal/domain/schedule"
	"github.com/okian/dosewatch/internal/domain/window"
	"github.com/okian/dosewatch/pkg/logger"
	"github.com/okian/dosewatch/pkg/metrics"
)

const (
	defaultPollInterval = 20 * time.Second
	defaultWorkerCount  = 2
	defaultQueueSize    = 1024
)

// CycleReport summarises one detection cycle.
type CycleReport struct {
	ID               string        `json:"id"`
	Date             model.Date    `json:"-"`
	Day              string        `json:"date"`
	StartedAt        time.Time     `json:"startedAt"`
	Duration         time.Duration `json:"duration"`
	Medications      int           `json:"medications"`
	Slots            int           `json:"slots"`
	Alertable        int           `json:"alertable"`
	SuppressedIntake int           `json:"suppressedIntake"`
	Duplicates       int           `json:"duplicates"`
	MissingCaregiver int           `json:"missingCaregiver"`
	Malformed        int           `json:"malformed"`
	Expired          int           `json:"expired"`
	Enqueued         int           `json:"enqueued"`
	Dropped          int           `json:"dropped"`
	Evicted          int           `json:"evicted"`
}

// Service detects missed doses and hands alerts to the worker pool.
type Service struct {
	mu sync.RWMutex
	// cycleMu keeps cycles from overlapping.
	cycleMu sync.Mutex
	statsMu sync.RWMutex

	store     repository.Store
	notifier  worker.Notifier
	ledger    dedupe.Ledger
	evaluator *window.Evaluator
	clock     clock.Clock
	intakes   *IntakeLookup
	queue     *queue.InMemoryQueue
	pool      *worker.Pool

	pollInterval time.Duration
	workerCount  int
	queueSize    int
	recheck      bool

	started  bool
	running  bool // inside RunOnce
	stopCh   chan struct{}
	loopDone chan struct{}

	cycles    int64
	failures  int64
	lastCycle CycleReport

	logger logger.Logger
}

// New constructs a Service reading from store and delivering through n.
func New(store repository.Store, n worker.Notifier, opts ...Option) *Service {
	s := &Service{
		store:        store,
		notifier:     n,
		clock:        clock.System,
		pollInterval: defaultPollInterval,
		workerCount:  defaultWorkerCount,
		queueSize:    defaultQueueSize,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("engine")
	}
	if s.evaluator == nil {
		s.evaluator = window.New()
	}
	if s.ledger == nil {
		s.ledger = dedupe.NewInMemoryLedger()
	}
	s.intakes = NewIntakeLookup(store, s.evaluator.Location())
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	metrics.UpdateQueueCapacity(s.queue.Cap())

	return s
}

// Start launches the workers, runs one cycle immediately and then one per
// poll interval until Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.running {
		return errors.New("start engine: single cycle in progress")
	}
	if s.queue.IsClosed() {
		return fmt.Errorf("start engine: %w", queue.ErrClosed)
	}

	s.startWorkers(ctx)
	s.stopCh = make(chan struct{})
	s.loopDone = make(chan struct{})
	go s.loop(ctx)

	s.started = true
	s.logger.Info(ctx, "missed-dose engine started",
		logger.Duration("poll_interval", s.pollInterval),
		logger.Duration("grace_period", s.evaluator.GracePeriod()),
		logger.Duration("upper_bound", s.evaluator.UpperBound()),
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
	)
	return nil
}

func (s *Service) startWorkers(ctx context.Context) {
	var opts []worker.Option
	if s.recheck {
		opts = append(opts, worker.WithRecheck(s.store))
	}
	s.pool = worker.NewPool(s.workerCount, s.queue, s.notifier, opts...)
	s.pool.Start(ctx)
}

// loop checks ctx only between cycles; a cycle that has begun runs to the
// end so a mark in the ledger is never left without its queued alert.
func (s *Service) loop(ctx context.Context) {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	cycleCtx := context.WithoutCancel(ctx)
	for {
		s.tick(cycleCtx)
		select {
		case <-ticker.C:
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	report, err := s.RunCycle(ctx)
	if err != nil {
		s.logger.Error(ctx, "detection cycle aborted",
			logger.String("cycle_id", report.ID),
			logger.Error(err),
		)
		return
	}
	s.logger.Debug(ctx, "detection cycle finished",
		logger.String("cycle_id", report.ID),
		logger.Int("slots", report.Slots),
		logger.Int("enqueued", report.Enqueued),
		logger.Duration("took", report.Duration),
	)
}

// Stop stops scheduling cycles, lets a running cycle finish and drains
// queued alerts.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping missed-dose engine...")

	close(s.stopCh)
	<-s.loopDone

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Error(ctx, "worker pool did not drain", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "missed-dose engine stopped")
}

// RunOnce runs a single cycle and waits for its alerts to be delivered.
// Cancelling ctx does not interrupt the cycle. The service cannot be
// started afterwards.
func (s *Service) RunOnce(ctx context.Context) (CycleReport, error) {
	s.mu.Lock()
	if s.started || s.running {
		s.mu.Unlock()
		return CycleReport{}, errors.New("run once: engine already running")
	}
	if s.queue.IsClosed() {
		s.mu.Unlock()
		return CycleReport{}, fmt.Errorf("run once: %w", queue.ErrClosed)
	}
	s.running = true
	s.startWorkers(ctx)
	pool := s.pool
	s.mu.Unlock()

	cycleCtx := context.WithoutCancel(ctx)
	report, err := s.RunCycle(cycleCtx)
	if shutdownErr := pool.Shutdown(cycleCtx); shutdownErr != nil {
		err = errors.Join(err, shutdownErr)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return report, err
}

// RunCycle evaluates every active medication against one clock reading and
// enqueues an alert for each newly missed dose. A storage failure aborts the
// cycle; ledger eviction runs regardless.
func (s *Service) RunCycle(ctx context.Context) (CycleReport, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	started := time.Now()
	now := s.clock.Now()
	today := s.evaluator.Today(now)

	report := CycleReport{
		ID:        uuid.NewString(),
		Date:      today,
		Day:       today.String(),
		StartedAt: now,
	}

	err := s.scan(ctx, now, today, &report)

	report.Evicted = s.ledger.EvictOlderThan(ctx, today.AddDays(-1))
	metrics.RecordLedgerEvictions(report.Evicted)
	metrics.UpdateLedgerSize(s.ledger.Len(ctx))

	report.Duration = time.Since(started)
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.RecordCycle(outcome, float64(report.Duration.Milliseconds()))

	s.statsMu.Lock()
	s.cycles++
	if err != nil {
		s.failures++
	}
	s.lastCycle = report
	s.statsMu.Unlock()

	return report, err
}

func (s *Service) scan(ctx context.Context, now time.Time, today model.Date, report *CycleReport) error {
	meds, err := s.store.ListActive(ctx)
	if err != nil {
		metrics.RecordStorageError("list_active")
		return fmt.Errorf("list active medications: %w", err)
	}
	report.Medications = len(meds)
	metrics.UpdateActiveMedications(len(meds))

	for i := range meds {
		med := &meds[i]
		if !med.ScheduledOn(today) {
			continue
		}
		for _, slot := range schedule.SlotsFor(med.Schedule, today) {
			report.Slots++

			verdict, err := s.evaluator.Classify(slot, today, now)
			if err != nil {
				report.Malformed++
				_ = metrics.RecordSlotVerdict(metrics.VerdictMalformed)
				s.logger.Debug(ctx, "skipping malformed slot",
					logger.Int64("medication_id", med.ID),
					logger.String("slot", slot),
					logger.Error(err),
				)
				continue
			}
			_ = metrics.RecordSlotVerdict(verdict.Status.String())

			switch verdict.Status {
			case window.NotYetDue:
				continue
			case window.Expired:
				report.Expired++
				continue
			case window.Alertable:
			}

			report.Alertable++
			if err := s.alert(ctx, med, slot, today, verdict, now, report); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) alert(ctx context.Context, med *model.Medication, slot string, today model.Date,
	verdict window.Verdict, now time.Time, report *CycleReport,
) error {
	dose := model.DoseInstance{
		MedicationID: med.ID,
		PatientID:    med.PatientID,
		Date:         today,
		Slot:         slot,
	}

	confirmed, err := s.intakes.Confirmed(ctx, dose)
	if err != nil {
		metrics.RecordStorageError("intake_exists")
		return fmt.Errorf("intake lookup for %s: %w", dose, err)
	}
	if confirmed {
		report.SuppressedIntake++
		_ = metrics.RecordAlertSuppressed(metrics.SuppressedIntake)
		return nil
	}

	if !s.ledger.TryMarkAlerted(ctx, dose) {
		report.Duplicates++
		_ = metrics.RecordAlertSuppressed(metrics.SuppressedDuplicate)
		return nil
	}

	caregiver, err := s.store.FindCaregiverOf(ctx, med.PatientID)
	if errors.Is(err, repository.ErrNotFound) {
		report.MissingCaregiver++
		_ = metrics.RecordAlertSuppressed(metrics.SuppressedCaregiverMissing)
		s.logger.Warn(ctx, "no caregiver to alert for missed dose",
			logger.String("dose", dose.String()),
			logger.Int64("patient_id", med.PatientID),
		)
		return nil
	}
	if err != nil {
		metrics.RecordStorageError("find_caregiver")
		return fmt.Errorf("find caregiver of patient %d: %w", med.PatientID, err)
	}

	a := model.Alert{
		Dose:            dose,
		Caregiver:       caregiver,
		PatientLabel:    med.PatientName,
		MedicationLabel: med.Label(),
		ScheduledAt:     verdict.ScheduledAt,
		ObservedAt:      now,
	}
	if err := s.queue.Enqueue(ctx, a); err != nil {
		report.Dropped++
		metrics.RecordAlertDropped()
		s.logger.Warn(ctx, "dropping missed-dose alert",
			logger.String("dose", dose.String()),
			logger.Int64("caregiver_id", caregiver.ID),
			logger.Error(err),
		)
		return nil
	}

	report.Enqueued++
	metrics.RecordAlertEnqueued()
	metrics.UpdateQueueSize(s.queue.Len(ctx))
	s.logger.Info(ctx, "missed dose detected",
		logger.String("dose", dose.String()),
		logger.Int64("caregiver_id", caregiver.ID),
		logger.Duration("late_by", verdict.Elapsed),
	)
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":      s.started,
		"pollInterval": s.pollInterval.String(),
		"gracePeriod":  s.evaluator.GracePeriod().String(),
		"upperBound":   s.evaluator.UpperBound().String(),
		"workerCount":  s.workerCount,
		"queueSize":    s.queueSize,
		"queueLength":  s.queue.Len(ctx),
		"ledgerSize":   s.ledger.Len(ctx),
	}

	s.statsMu.RLock()
	stats["cycles"] = s.cycles
	stats["failedCycles"] = s.failures
	if s.cycles > 0 {
		stats["lastCycle"] = s.lastCycle
	}
	s.statsMu.RUnlock()
	if s.pool != nil {
		delivered, failed := s.pool.Stats()
		stats["delivered"] = delivered
		stats["deliveryFailures"] = failed
	}

	metrics.UpdateQueueSize(s.queue.Len(ctx))
	metrics.UpdateLedgerSize(s.ledger.Len(ctx))

	return stats
}
