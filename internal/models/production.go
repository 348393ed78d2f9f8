package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RunType distinguishes tank-bound blends from line fills.
type RunType string

const (
	RunTypeBlend RunType = "blend"
	RunTypeFill  RunType = "fill"
)

// Valid returns true if the run type is valid.
func (t RunType) Valid() bool {
	return t == RunTypeBlend || t == RunTypeFill
}

// RunStatus is the lifecycle state of a production run.
type RunStatus string

const (
	RunStatusDraft      RunStatus = "Draft"
	RunStatusInProgress RunStatus = "InProgress"
	RunStatusPaused     RunStatus = "Paused"
	RunStatusFinished   RunStatus = "Finished"
	RunStatusCancelled  RunStatus = "Cancelled"
)

// Valid returns true if the status is valid.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusDraft, RunStatusInProgress, RunStatusPaused, RunStatusFinished, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further event is accepted.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusFinished || s == RunStatusCancelled
}

// RunEvent is an operation that drives a run between states.
type RunEvent string

const (
	EventStart  RunEvent = "start"
	EventPause  RunEvent = "pause"
	EventResume RunEvent = "resume"
	EventFinish RunEvent = "finish"
	EventCancel RunEvent = "cancel"
	EventDelete RunEvent = "delete"

	// EventPlan records shortages on a run; it never changes the status.
	EventPlan RunEvent = "plan"
)

var runTransitions = map[RunStatus]map[RunEvent]RunStatus{
	RunStatusDraft: {
		EventStart:  RunStatusInProgress,
		EventCancel: RunStatusCancelled,
	},
	RunStatusInProgress: {
		EventPause:  RunStatusPaused,
		EventFinish: RunStatusFinished,
	},
	RunStatusPaused: {
		EventResume: RunStatusInProgress,
		EventFinish: RunStatusFinished,
	},
}

// NextStatus returns the status an event leads to, or false if the event is
// illegal in the given status.
func NextStatus(from RunStatus, ev RunEvent) (RunStatus, bool) {
	to, ok := runTransitions[from][ev]
	return to, ok
}

// ComponentRequirement is one bill-of-materials line of a run.
type ComponentRequirement struct {
	ItemID   string          `json:"itemId" yaml:"itemId"`
	Quantity decimal.Decimal `json:"quantity" yaml:"quantity"`
}

// ConsumedComponent records what a started run actually drew from a batch.
type ConsumedComponent struct {
	ComponentID string          `json:"componentId"`
	BatchID     string          `json:"batchId"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unitCost"`
}

// Shortage is a component that open batches cannot cover at planning time.
type Shortage struct {
	ItemID    string          `json:"itemId"`
	ItemName  string          `json:"itemName,omitempty"`
	Requested decimal.Decimal `json:"requested"`
	Available decimal.Decimal `json:"available"`
}

func (s Shortage) label() string {
	if s.ItemName != "" {
		return s.ItemName
	}
	return s.ItemID
}

// CleaningLog is an audit entry for a tank sanitation.
type CleaningLog struct {
	TankID  string    `json:"tankId"`
	ActorID *string   `json:"actorId,omitempty"`
	Notes   string    `json:"notes,omitempty"`
	At      time.Time `json:"at"`
}

// RunCost is the material cost of a finished run.
type RunCost struct {
	Total decimal.Decimal `json:"total"`
	Unit  decimal.Decimal `json:"unit"`
}

// ProductionRun is a manufacturing order. ConsumedComponents and
// OutputBatchID are written once.
type ProductionRun struct {
	ID                 string                 `json:"id"`
	OpCode             string                 `json:"opCode"`
	Type               RunType                `json:"type"`
	Status             RunStatus              `json:"status"`
	ProductSKU         string                 `json:"productSku"`
	QtyPlanned         decimal.Decimal        `json:"qtyPlanned"`
	QtyActual          *decimal.Decimal       `json:"qtyActual,omitempty"`
	LineID             string                 `json:"lineId"`
	TankID             *string                `json:"tankId,omitempty"`
	StartPlanned       time.Time              `json:"startPlanned"`
	StartActual        *time.Time             `json:"startActual,omitempty"`
	EndActual          *time.Time             `json:"endActual,omitempty"`
	LastPausedAt       *time.Time             `json:"lastPausedAt,omitempty"`
	TotalPauseDuration time.Duration          `json:"totalPauseDuration"`
	Components         []ComponentRequirement `json:"components"`
	ConsumedComponents []ConsumedComponent    `json:"consumedComponents"`
	Shortages          []Shortage             `json:"shortages"`
	OutputBatchID      *string                `json:"outputBatchId,omitempty"`
	Cost               *RunCost               `json:"cost,omitempty"`
	YieldPct           *decimal.Decimal       `json:"yieldPct,omitempty"`
	ThroughputPerHour  *decimal.Decimal       `json:"throughputPerHour,omitempty"`
	Notes              string                 `json:"notes,omitempty"`
	CleaningLogs       []CleaningLog          `json:"cleaningLogs"`
	StartedBy          *string                `json:"startedBy,omitempty"`
	FinishedBy         *string                `json:"finishedBy,omitempty"`
	Version            int64                  `json:"-"`
	CreatedAt          time.Time              `json:"createdAt"`
	UpdatedAt          time.Time              `json:"updatedAt"`
}

// Validate checks a run's static fields.
func (r *ProductionRun) Validate() error {
	var errs []error
	if r.ID == "" {
		errs = append(errs, &ValidationError{Field: "id", Reason: "is required"})
	}
	if r.OpCode == "" {
		errs = append(errs, &ValidationError{Field: "opCode", Reason: "is required"})
	}
	if !r.Type.Valid() {
		errs = append(errs, &ValidationError{Field: "type", Reason: fmt.Sprintf("invalid run type %q", r.Type)})
	}
	if !r.Status.Valid() {
		errs = append(errs, &ValidationError{Field: "status", Reason: fmt.Sprintf("invalid status %q", r.Status)})
	}
	if r.ProductSKU == "" {
		errs = append(errs, &ValidationError{Field: "productSku", Reason: "is required"})
	}
	if !r.QtyPlanned.IsPositive() {
		errs = append(errs, &ValidationError{Field: "qtyPlanned", Reason: "must be positive"})
	}
	if r.LineID == "" {
		errs = append(errs, &ValidationError{Field: "lineId", Reason: "is required"})
	}
	switch {
	case r.Type == RunTypeBlend && (r.TankID == nil || *r.TankID == ""):
		errs = append(errs, &ValidationError{Field: "tankId", Reason: "is required for a blend run"})
	case r.Type == RunTypeFill && r.TankID != nil:
		errs = append(errs, &ValidationError{Field: "tankId", Reason: "is only allowed on a blend run"})
	}

	seen := make(map[string]bool, len(r.Components))
	for i, c := range r.Components {
		field := fmt.Sprintf("components[%d]", i)
		if c.ItemID == "" {
			errs = append(errs, &ValidationError{Field: field + ".itemId", Reason: "is required"})
			continue
		}
		if seen[c.ItemID] {
			errs = append(errs, &ValidationError{Field: field + ".itemId", Reason: "is listed twice"})
		}
		seen[c.ItemID] = true
		if !c.Quantity.IsPositive() {
			errs = append(errs, &ValidationError{Field: field + ".quantity", Reason: "must be positive"})
		}
	}
	return errors.Join(errs...)
}

func (r *ProductionRun) apply(ev RunEvent) error {
	to, ok := NextStatus(r.Status, ev)
	if !ok {
		return &TransitionError{RunID: r.ID, Status: r.Status, Event: ev}
	}
	r.Status = to
	return nil
}

// CheckEvent returns a TransitionError if ev is illegal in the current status.
func (r *ProductionRun) CheckEvent(ev RunEvent) error {
	if ev == EventDelete || ev == EventPlan {
		if r.Status != RunStatusDraft {
			return &TransitionError{RunID: r.ID, Status: r.Status, Event: ev}
		}
		return nil
	}
	if _, ok := NextStatus(r.Status, ev); !ok {
		return &TransitionError{RunID: r.ID, Status: r.Status, Event: ev}
	}
	return nil
}

// Start moves a Draft run to InProgress and records what it consumed.
func (r *ProductionRun) Start(now time.Time, consumed []ConsumedComponent, actorID *string) error {
	if err := r.CheckEvent(EventStart); err != nil {
		return err
	}
	if len(r.Shortages) > 0 {
		return &ShortageError{RunID: r.ID, Shortages: r.Shortages}
	}
	if len(r.ConsumedComponents) > 0 {
		return &ValidationError{Field: "consumedComponents", Reason: "already recorded"}
	}
	if err := r.apply(EventStart); err != nil {
		return err
	}
	r.ConsumedComponents = consumed
	r.StartActual = &now
	r.StartedBy = actorID
	return nil
}

// Pause records the moment production stopped.
func (r *ProductionRun) Pause(now time.Time) error {
	if err := r.apply(EventPause); err != nil {
		return err
	}
	r.LastPausedAt = &now
	return nil
}

// Resume folds the elapsed pause into TotalPauseDuration.
func (r *ProductionRun) Resume(now time.Time) error {
	if err := r.apply(EventResume); err != nil {
		return err
	}
	if r.LastPausedAt != nil && now.After(*r.LastPausedAt) {
		r.TotalPauseDuration += now.Sub(*r.LastPausedAt)
	}
	r.LastPausedAt = nil
	return nil
}

// FinishResult is what a run yields at finish.
type FinishResult struct {
	QtyActual     decimal.Decimal
	OutputBatchID string
	Notes         string
	ActorID       *string
}

// Finish closes the run, computing cost, yield and throughput from the
// recorded consumption. A paused run is resumed at now first.
func (r *ProductionRun) Finish(now time.Time, res FinishResult) error {
	if err := r.CheckEvent(EventFinish); err != nil {
		return err
	}
	if !res.QtyActual.IsPositive() {
		return &ValidationError{Field: "qtyActual", Reason: "must be positive"}
	}
	if r.OutputBatchID != nil {
		return &ValidationError{Field: "outputBatchId", Reason: "already recorded"}
	}
	if r.Status == RunStatusPaused {
		if err := r.Resume(now); err != nil {
			return err
		}
	}
	if err := r.apply(EventFinish); err != nil {
		return err
	}

	qty := res.QtyActual
	out := res.OutputBatchID
	cost := ComputeCost(r.ConsumedComponents, qty)
	yield := YieldPct(qty, r.QtyPlanned)

	r.QtyActual = &qty
	r.OutputBatchID = &out
	r.EndActual = &now
	r.Cost = &cost
	r.YieldPct = &yield
	r.ThroughputPerHour = Throughput(qty, r.EffectiveDuration(now))
	r.Notes = res.Notes
	r.FinishedBy = res.ActorID
	return nil
}

// Cancel abandons a Draft run.
func (r *ProductionRun) Cancel() error {
	return r.apply(EventCancel)
}

// EffectiveDuration is the productive time between start and end, with
// pauses excluded.
func (r *ProductionRun) EffectiveDuration(end time.Time) time.Duration {
	if r.StartActual == nil {
		return 0
	}
	d := end.Sub(*r.StartActual) - r.TotalPauseDuration
	if r.LastPausedAt != nil && end.After(*r.LastPausedAt) {
		d -= end.Sub(*r.LastPausedAt)
	}
	if d < 0 {
		return 0
	}
	return d
}

// HasTank reports whether the run is bound to a tank.
func (r *ProductionRun) HasTank() bool {
	return r.TankID != nil && *r.TankID != ""
}

// ComputeCost totals consumed material cost and spreads it over qtyActual.
func ComputeCost(consumed []ConsumedComponent, qtyActual decimal.Decimal) RunCost {
	total := decimal.Zero
	for _, c := range consumed {
		total = total.Add(c.UnitCost.Mul(c.Quantity))
	}
	unit := decimal.Zero
	if qtyActual.IsPositive() {
		unit = total.DivRound(qtyActual, 6)
	}
	return RunCost{Total: total, Unit: unit}
}

// YieldPct returns actual/planned as a percentage.
func YieldPct(actual, planned decimal.Decimal) decimal.Decimal {
	if !planned.IsPositive() {
		return decimal.Zero
	}
	return actual.Mul(decimal.NewFromInt(100)).DivRound(planned, 2)
}

// Throughput returns units per productive hour, or nil when no productive
// time elapsed.
func Throughput(qty decimal.Decimal, productive time.Duration) *decimal.Decimal {
	if productive <= 0 {
		return nil
	}
	v := qty.DivRound(hours(productive), 4)
	return &v
}

// ProductiveHours returns the run's duration up to its end with pauses
// excluded, in hours rounded to 4 places. It is zero until the run ends.
func (r *ProductionRun) ProductiveHours() decimal.Decimal {
	if r.EndActual == nil {
		return decimal.Zero
	}
	return hours(r.EffectiveDuration(*r.EndActual)).Round(4)
}

func hours(d time.Duration) decimal.Decimal {
	return decimal.NewFromInt(int64(d)).Div(decimal.NewFromInt(int64(time.Hour)))
}

// RunFilter defines filters for querying runs.
type RunFilter struct {
	Status *RunStatus
	Type   *RunType
	LineID string
}

// RunList represents a paginated list of runs.
type RunList struct {
	Runs       []*ProductionRun `json:"runs"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	TotalPages int              `json:"totalPages"`
}
