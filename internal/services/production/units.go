package production

import (
	"context"
	"fmt"

	"github.com/batchworks/batchworks/internal/models"
	"github.com/batchworks/batchworks/internal/services/inventory"
	"github.com/batchworks/batchworks/internal/uow"
	"github.com/batchworks/batchworks/internal/util"
)

// planUnit plans every component of a Draft run and records its shortages.
type planUnit struct {
	runID    string
	strategy models.Strategy

	run     *models.ProductionRun
	items   map[string]*models.InventoryItem
	batches map[string][]*models.ItemBatch
	plan    *models.RunPlan
}

func (u *planUnit) Name() string { return "plan_run" }

func (u *planUnit) Read(ctx context.Context, r *uow.Reader) error {
	var err error
	if u.run, err = r.Run(ctx, u.runID); err != nil {
		return err
	}
	u.items = make(map[string]*models.InventoryItem, len(u.run.Components))
	u.batches = make(map[string][]*models.ItemBatch, len(u.run.Components))
	for _, c := range u.run.Components {
		if u.items[c.ItemID], err = r.Item(ctx, c.ItemID); err != nil {
			return err
		}
		if u.batches[c.ItemID], err = r.OpenBatches(ctx, c.ItemID); err != nil {
			return err
		}
	}
	return nil
}

func (u *planUnit) Apply(ctx context.Context, w *uow.Writer) error {
	if err := u.run.CheckEvent(models.EventPlan); err != nil {
		return err
	}

	plan := &models.RunPlan{RunID: u.run.ID}
	shortages := []models.Shortage{}
	for _, c := range u.run.Components {
		item := u.items[c.ItemID]
		line, err := inventory.Plan(item, u.batches[c.ItemID], c.Quantity, u.strategy)
		if err != nil {
			short, ok := asInsufficient(err)
			if !ok {
				return fmt.Errorf("planning %s: %w", item.Label(), err)
			}
			shortages = append(shortages, models.Shortage{
				ItemID:    item.ID,
				ItemName:  item.Label(),
				Requested: short.Requested,
				Available: short.Available,
			})
			continue
		}
		plan.Lines = append(plan.Lines, *line)
	}

	u.run.Shortages = shortages
	if err := w.SaveRun(ctx, u.run); err != nil {
		return err
	}
	plan.Shortages = shortages
	u.plan = plan
	return nil
}

// startUnit commits a confirmed plan and moves a Draft run to InProgress.
type startUnit struct {
	runID   string
	plan    *models.RunPlan
	actorID *string

	run     *models.ProductionRun
	tank    *models.Tank
	batches map[string]*models.ItemBatch
}

func (u *startUnit) Name() string { return "start_run" }

func (u *startUnit) Read(ctx context.Context, r *uow.Reader) error {
	var err error
	u.tank = nil
	u.batches = make(map[string]*models.ItemBatch)
	if u.run, err = r.Run(ctx, u.runID); err != nil {
		return err
	}
	for _, c := range u.run.Components {
		if _, err := r.Item(ctx, c.ItemID); err != nil {
			return err
		}
	}
	for _, line := range u.plan.Lines {
		for _, a := range line.Allocations {
			b, err := r.Batch(ctx, a.BatchID)
			if err != nil {
				return err
			}
			u.batches[b.ID] = b
		}
	}
	if u.run.HasTank() {
		if u.tank, err = r.Tank(ctx, *u.run.TankID); err != nil {
			return err
		}
	}
	return nil
}

func (u *startUnit) Apply(ctx context.Context, w *uow.Writer) error {
	run := u.run
	if err := run.CheckEvent(models.EventStart); err != nil {
		return err
	}
	if len(run.Shortages) > 0 {
		return &models.ShortageError{RunID: run.ID, Shortages: run.Shortages}
	}
	if err := checkPlanCovers(run, u.plan); err != nil {
		return err
	}
	for _, line := range u.plan.Lines {
		for _, a := range line.Allocations {
			if b := u.batches[a.BatchID]; b.InventoryItemID != line.ItemID {
				return &models.ValidationError{
					Field:  "plan",
					Reason: fmt.Sprintf("batch %s does not belong to item %s", b.ID, line.ItemID),
				}
			}
		}
	}

	if u.tank != nil {
		if err := u.tank.Claim(models.HolderRun, run.ID); err != nil {
			return err
		}
		if err := w.SetTank(ctx, u.tank); err != nil {
			return err
		}
	}

	m := uow.Mutation{
		Type:      models.TransactionConsumption,
		Reference: models.Reference{Collection: models.RefProductionRuns, ID: run.ID},
		ActorID:   u.actorID,
	}
	var consumed []models.ConsumedComponent
	for _, line := range u.plan.Lines {
		for _, a := range line.Allocations {
			b, err := w.ConsumeBatch(ctx, a.BatchID, a.Quantity, m)
			if err != nil {
				return err
			}
			consumed = append(consumed, models.ConsumedComponent{
				ComponentID: line.ItemID,
				BatchID:     b.ID,
				Quantity:    a.Quantity,
				UnitCost:    b.UnitCost,
			})
		}
	}

	if err := run.Start(w.Now(), consumed, u.actorID); err != nil {
		return err
	}
	return w.SaveRun(ctx, run)
}

// checkPlanCovers requires exactly one plan line per component, drawing the
// component's full quantity.
func checkPlanCovers(run *models.ProductionRun, plan *models.RunPlan) error {
	if plan.RunID != "" && plan.RunID != run.ID {
		return &models.ValidationError{Field: "plan", Reason: fmt.Sprintf("was made for run %s", plan.RunID)}
	}

	required := make(map[string]bool, len(run.Components))
	for _, c := range run.Components {
		required[c.ItemID] = true
		line, ok := plan.Line(c.ItemID)
		if !ok {
			return &models.ValidationError{Field: "plan", Reason: fmt.Sprintf("has no line for component %s", c.ItemID)}
		}
		if !line.Total().Equal(c.Quantity) {
			return &models.ValidationError{
				Field:  "plan",
				Reason: fmt.Sprintf("draws %s of component %s, run needs %s", line.Total(), c.ItemID, c.Quantity),
			}
		}
	}

	seen := make(map[string]bool, len(plan.Lines))
	for _, line := range plan.Lines {
		if !required[line.ItemID] {
			return &models.ValidationError{Field: "plan", Reason: fmt.Sprintf("item %s is not a component of the run", line.ItemID)}
		}
		if seen[line.ItemID] {
			return &models.ValidationError{Field: "plan", Reason: fmt.Sprintf("lists item %s twice", line.ItemID)}
		}
		seen[line.ItemID] = true
		for _, a := range line.Allocations {
			if !a.Quantity.IsPositive() {
				return &models.ValidationError{Field: "plan", Reason: fmt.Sprintf("allocation from batch %s must be positive", a.BatchID)}
			}
		}
	}
	return nil
}

// finishUnit creates the output batch and closes the run.
type finishUnit struct {
	runID   string
	actuals Actuals
	actorID *string

	run     *models.ProductionRun
	product *models.InventoryItem
	tank    *models.Tank
	batch   *models.ItemBatch
}

func (u *finishUnit) Name() string { return "finish_run" }

func (u *finishUnit) Read(ctx context.Context, r *uow.Reader) error {
	var err error
	u.tank = nil
	if u.run, err = r.Run(ctx, u.runID); err != nil {
		return err
	}
	if u.product, err = r.ItemBySKU(ctx, u.run.ProductSKU); err != nil {
		return err
	}
	if u.run.HasTank() {
		if u.tank, err = r.Tank(ctx, *u.run.TankID); err != nil {
			return err
		}
	}
	return nil
}

func (u *finishUnit) Apply(ctx context.Context, w *uow.Writer) error {
	run := u.run
	if err := run.CheckEvent(models.EventFinish); err != nil {
		return err
	}
	if u.actuals.KeepInTank && u.tank == nil {
		return &models.ValidationError{Field: "keepInTank", Reason: "requires a blend run"}
	}

	now := w.Now()
	cost := models.ComputeCost(run.ConsumedComponents, u.actuals.QtyActual)
	b := &models.ItemBatch{
		ID:                w.NewID(),
		InventoryItemID:   u.product.ID,
		InternalBatchCode: util.BatchCode(now, u.product.SKU),
		QtyInitial:        u.actuals.QtyActual,
		QtyRemaining:      u.actuals.QtyActual,
		UnitCost:          cost.Unit,
		ExpiryDate:        u.actuals.ExpiryDate,
	}

	if u.tank != nil {
		if !u.tank.HeldBy(models.HolderRun, run.ID) {
			return &models.ResourceUnavailableError{TankID: u.tank.ID, Code: u.tank.Code, Status: u.tank.Status}
		}
		if u.actuals.KeepInTank {
			if err := u.tank.Handover(models.HolderBatch, b.ID); err != nil {
				return err
			}
			b.LocationID = &u.tank.ID
		} else {
			u.tank.Release(u.actuals.SanitationConfirmed)
		}
		if err := w.SetTank(ctx, u.tank); err != nil {
			return err
		}
	}

	err := w.CreateBatch(ctx, b, uow.Mutation{
		Type:      models.TransactionProduction,
		Reference: models.Reference{Collection: models.RefProductionRuns, ID: run.ID},
		ActorID:   u.actorID,
	})
	if err != nil {
		return err
	}

	err = run.Finish(now, models.FinishResult{
		QtyActual:     u.actuals.QtyActual,
		OutputBatchID: b.ID,
		Notes:         u.actuals.Notes,
		ActorID:       u.actorID,
	})
	if err != nil {
		return err
	}
	if u.tank != nil && !u.actuals.KeepInTank && u.actuals.SanitationConfirmed {
		run.CleaningLogs = append(run.CleaningLogs, models.CleaningLog{
			TankID:  u.tank.ID,
			ActorID: u.actorID,
			Notes:   "sanitized at finish",
			At:      now,
		})
	}
	if err := w.SaveRun(ctx, run); err != nil {
		return err
	}
	u.batch = b
	return nil
}

// eventUnit applies a run event with no stock side effects.
type eventUnit struct {
	runID string
	event models.RunEvent

	run *models.ProductionRun
}

func (u *eventUnit) Name() string { return string(u.event) + "_run" }

func (u *eventUnit) Read(ctx context.Context, r *uow.Reader) error {
	var err error
	u.run, err = r.Run(ctx, u.runID)
	return err
}

func (u *eventUnit) Apply(ctx context.Context, w *uow.Writer) error {
	run := u.run
	var err error
	switch u.event {
	case models.EventPause:
		err = run.Pause(w.Now())
	case models.EventResume:
		err = run.Resume(w.Now())
	case models.EventCancel:
		err = run.Cancel()
	case models.EventDelete:
		if err := run.CheckEvent(models.EventDelete); err != nil {
			return err
		}
		return w.DeleteRun(ctx, run)
	default:
		return fmt.Errorf("unsupported run event %q", u.event)
	}
	if err != nil {
		return err
	}
	return w.SaveRun(ctx, run)
}

// cleanUnit confirms a tank's sanitation and logs it on the tank's last run.
type cleanUnit struct {
	tankID  string
	actorID *string
	notes   string

	tank *models.Tank
	run  *models.ProductionRun
}

func (u *cleanUnit) Name() string { return "confirm_tank_cleaning" }

func (u *cleanUnit) Read(ctx context.Context, r *uow.Reader) error {
	var err error
	u.run = nil
	if u.tank, err = r.Tank(ctx, u.tankID); err != nil {
		return err
	}
	if u.tank.LastRunID != nil {
		if u.run, err = r.Run(ctx, *u.tank.LastRunID); err != nil {
			return err
		}
	}
	return nil
}

func (u *cleanUnit) Apply(ctx context.Context, w *uow.Writer) error {
	if err := u.tank.ConfirmCleaned(); err != nil {
		return err
	}
	if err := w.SetTank(ctx, u.tank); err != nil {
		return err
	}
	if u.run == nil {
		return nil
	}
	u.run.CleaningLogs = append(u.run.CleaningLogs, models.CleaningLog{
		TankID:  u.tank.ID,
		ActorID: u.actorID,
		Notes:   u.notes,
		At:      w.Now(),
	})
	return w.SaveRun(ctx, u.run)
}
