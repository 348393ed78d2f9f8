// Package production drives production runs through their lifecycle:
// Draft, InProgress, Paused, Finished and Cancelled. Starting a run consumes
// its confirmed component batches and finishing it creates the output batch,
// each as one unit of work.
package production

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/batchworks/batchworks/internal/metrics"
	"github.com/batchworks/batchworks/internal/models"
	"github.com/batchworks/batchworks/internal/uow"
	"github.com/batchworks/batchworks/internal/util"
)

// Service provides production run operations.
type Service struct {
	exec     *uow.Executor
	repos    *uow.Repositories
	metrics  *metrics.Recorder
	logger   *slog.Logger
	opPrefix string
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records committed run events.
func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithOpCodePrefix sets the prefix of generated op codes.
func WithOpCodePrefix(prefix string) Option {
	return func(s *Service) { s.opPrefix = prefix }
}

// NewService creates a new production service.
func NewService(exec *uow.Executor, opts ...Option) *Service {
	s := &Service{
		exec:     exec,
		repos:    exec.Repositories(),
		logger:   slog.Default(),
		opPrefix: "OP",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRun creates a Draft run. The product and every component item must
// exist, and a blend run must name an existing tank.
func (s *Service) CreateRun(ctx context.Context, spec RunSpec) (*models.ProductionRun, error) {
	now := s.exec.Clock().Now()
	run := &models.ProductionRun{
		ID:           s.exec.IDs().NewID(),
		OpCode:       strings.TrimSpace(spec.OpCode),
		Type:         spec.Type,
		Status:       models.RunStatusDraft,
		ProductSKU:   strings.ToUpper(strings.TrimSpace(spec.ProductSKU)),
		QtyPlanned:   spec.QtyPlanned,
		LineID:       spec.LineID,
		TankID:       spec.TankID,
		StartPlanned: now,
		Components:   spec.Components,
		Shortages:    []models.Shortage{},
		Notes:        spec.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if spec.StartPlanned != nil {
		run.StartPlanned = spec.StartPlanned.UTC()
	}
	if run.OpCode == "" {
		run.OpCode = util.OpCode(s.opPrefix, run.StartPlanned)
	}
	if err := run.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.repos.Items.GetBySKU(ctx, run.ProductSKU); err != nil {
		return nil, fmt.Errorf("product: %w", err)
	}
	for _, c := range run.Components {
		if _, err := s.repos.Items.GetByID(ctx, c.ItemID); err != nil {
			return nil, fmt.Errorf("component: %w", err)
		}
	}
	if run.HasTank() {
		if _, err := s.repos.Tanks.GetByID(ctx, *run.TankID); err != nil {
			return nil, err
		}
	}

	if err := s.repos.Runs.Create(ctx, nil, run); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}

	s.logger.Info("production run created", "run_id", run.ID, "op_code", run.OpCode, "type", run.Type)
	return run, nil
}

// PlanRun plans every component line of a Draft run with strategy and
// records the lines that cannot be covered as the run's shortages. The
// returned plan is what an operator confirms before StartRun.
func (s *Service) PlanRun(ctx context.Context, runID string, strategy models.Strategy) (*models.RunPlan, error) {
	u := &planUnit{runID: runID, strategy: strategy}
	if err := s.exec.Run(ctx, u); err != nil {
		return nil, fmt.Errorf("planning run: %w", err)
	}
	if len(u.plan.Shortages) > 0 {
		s.logger.Warn("production run has shortages", "run_id", runID, "shortages", len(u.plan.Shortages))
	}
	return u.plan, nil
}

// StartRun commits a confirmed plan: every planned batch is re-validated and
// consumed, a blend run claims its tank, and the run moves to InProgress.
func (s *Service) StartRun(ctx context.Context, runID string, plan *models.RunPlan, actorID *string) (*models.ProductionRun, error) {
	if plan == nil {
		return nil, &models.ValidationError{Field: "plan", Reason: "is required"}
	}

	u := &startUnit{runID: runID, plan: plan, actorID: actorID}
	if err := s.exec.Run(ctx, u); err != nil {
		return nil, fmt.Errorf("starting run: %w", err)
	}

	s.transitioned(u.run, models.EventStart)
	return u.run, nil
}

// PauseRun moves an InProgress run to Paused.
func (s *Service) PauseRun(ctx context.Context, runID string) (*models.ProductionRun, error) {
	return s.event(ctx, runID, models.EventPause)
}

// ResumeRun moves a Paused run back to InProgress, accumulating the pause.
func (s *Service) ResumeRun(ctx context.Context, runID string) (*models.ProductionRun, error) {
	return s.event(ctx, runID, models.EventResume)
}

// CancelRun abandons a Draft run. No stock is touched.
func (s *Service) CancelRun(ctx context.Context, runID string) (*models.ProductionRun, error) {
	return s.event(ctx, runID, models.EventCancel)
}

// DeleteRun removes a Draft run. Runs that consumed stock cannot be deleted.
func (s *Service) DeleteRun(ctx context.Context, runID string) error {
	_, err := s.event(ctx, runID, models.EventDelete)
	return err
}

// FinishRun creates the output batch from the run's recorded consumption and
// closes the run. The run's tank is handed to the output batch, freed or sent
// to cleaning depending on actuals.
func (s *Service) FinishRun(ctx context.Context, runID string, actuals Actuals, actorID *string) (*models.ProductionRun, *models.ItemBatch, error) {
	if !actuals.QtyActual.IsPositive() {
		return nil, nil, &models.ValidationError{Field: "qtyActual", Reason: "must be positive"}
	}
	if actuals.KeepInTank && actuals.SanitationConfirmed {
		return nil, nil, &models.ValidationError{Field: "keepInTank", Reason: "cannot be combined with sanitation"}
	}

	u := &finishUnit{runID: runID, actuals: actuals, actorID: actorID}
	if err := s.exec.Run(ctx, u); err != nil {
		return nil, nil, fmt.Errorf("finishing run: %w", err)
	}

	s.transitioned(u.run, models.EventFinish)
	return u.run, u.batch, nil
}

// ConfirmTankCleaning frees a tank in Cleaning and appends a cleaning log to
// the last run that used it.
func (s *Service) ConfirmTankCleaning(ctx context.Context, tankID string, actorID *string, notes string) (*models.Tank, error) {
	u := &cleanUnit{tankID: tankID, actorID: actorID, notes: notes}
	if err := s.exec.Run(ctx, u); err != nil {
		return nil, fmt.Errorf("confirming tank cleaning: %w", err)
	}
	s.logger.Info("tank cleaned", "tank_id", u.tank.ID, "code", u.tank.Code)
	return u.tank, nil
}

// GetRun retrieves a run by ID.
func (s *Service) GetRun(ctx context.Context, id string) (*models.ProductionRun, error) {
	return s.repos.Runs.GetByID(ctx, id)
}

// GetRunByOpCode retrieves a run by op code.
func (s *Service) GetRunByOpCode(ctx context.Context, code string) (*models.ProductionRun, error) {
	return s.repos.Runs.GetByOpCode(ctx, code)
}

// ListRuns retrieves runs with filtering and pagination.
func (s *Service) ListRuns(ctx context.Context, filter models.RunFilter, page models.Pagination) (*models.RunList, error) {
	return s.repos.Runs.List(ctx, filter, page)
}

func (s *Service) event(ctx context.Context, runID string, ev models.RunEvent) (*models.ProductionRun, error) {
	u := &eventUnit{runID: runID, event: ev}
	if err := s.exec.Run(ctx, u); err != nil {
		return nil, fmt.Errorf("%s run: %w", ev, err)
	}
	s.transitioned(u.run, ev)
	return u.run, nil
}

func (s *Service) transitioned(run *models.ProductionRun, ev models.RunEvent) {
	s.metrics.RunTransition(string(ev))
	s.logger.Info("production run "+eventPast[ev],
		"run_id", run.ID,
		"op_code", run.OpCode,
		"status", run.Status,
	)
}

var eventPast = map[models.RunEvent]string{
	models.EventStart:  "started",
	models.EventPause:  "paused",
	models.EventResume: "resumed",
	models.EventFinish: "finished",
	models.EventCancel: "cancelled",
	models.EventDelete: "deleted",
}

func asInsufficient(err error) (*models.InsufficientStockError, bool) {
	var short *models.InsufficientStockError
	if errors.As(err, &short) {
		return short, true
	}
	return nil, false
}
