package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Strategy selects the order batches are drawn from.
type Strategy string

const (
	StrategyFIFO Strategy = "FIFO"
	StrategyFEFO Strategy = "FEFO"
)

// ParseStrategy accepts FIFO or FEFO in any case. Empty means FIFO.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(StrategyFIFO):
		return StrategyFIFO, nil
	case string(StrategyFEFO):
		return StrategyFEFO, nil
	default:
		return "", &ValidationError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", s)}
	}
}

// Allocation draws Quantity from one batch. Snapshot is the batch as the
// planner saw it.
type Allocation struct {
	BatchID    string          `json:"batchId" yaml:"batchId"`
	BatchCode  string          `json:"batchCode,omitempty" yaml:"batchCode,omitempty"`
	Quantity   decimal.Decimal `json:"quantity" yaml:"quantity"`
	UnitCost   decimal.Decimal `json:"unitCost" yaml:"unitCost"`
	ExpiryDate *time.Time      `json:"expiryDate,omitempty" yaml:"expiryDate,omitempty"`
	Snapshot   *ItemBatch      `json:"-" yaml:"-"`
}

// AllocationPlan is the ordered consumption of one item.
type AllocationPlan struct {
	ItemID      string          `json:"itemId" yaml:"itemId"`
	ItemLabel   string          `json:"itemLabel,omitempty" yaml:"itemLabel,omitempty"`
	Strategy    Strategy        `json:"strategy" yaml:"strategy"`
	Requested   decimal.Decimal `json:"requested" yaml:"requested"`
	Allocations []Allocation    `json:"allocations" yaml:"allocations"`
}

// Total returns the quantity the plan draws.
func (p *AllocationPlan) Total() decimal.Decimal {
	total := decimal.Zero
	for _, a := range p.Allocations {
		total = total.Add(a.Quantity)
	}
	return total
}

// Cost returns Σ unitCost × quantity over the allocations.
func (p *AllocationPlan) Cost() decimal.Decimal {
	total := decimal.Zero
	for _, a := range p.Allocations {
		total = total.Add(a.UnitCost.Mul(a.Quantity))
	}
	return total
}

// RunPlan is the per-component plan an operator confirms before start.
type RunPlan struct {
	RunID     string           `json:"runId" yaml:"runId"`
	Lines     []AllocationPlan `json:"lines" yaml:"lines"`
	Shortages []Shortage       `json:"shortages,omitempty" yaml:"-"`
}

// Line returns the plan for an item, if any.
func (p *RunPlan) Line(itemID string) (*AllocationPlan, bool) {
	for i := range p.Lines {
		if p.Lines[i].ItemID == itemID {
			return &p.Lines[i], true
		}
	}
	return nil, false
}
