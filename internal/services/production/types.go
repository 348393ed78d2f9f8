package production

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/batchworks/batchworks/internal/models"
)

// RunSpec describes a run to create.
type RunSpec struct {
	OpCode       string                        `json:"opCode,omitempty"`
	Type         models.RunType                `json:"type"`
	ProductSKU   string                        `json:"productSku"`
	QtyPlanned   decimal.Decimal               `json:"qtyPlanned"`
	LineID       string                        `json:"lineId"`
	TankID       *string                       `json:"tankId,omitempty"`
	StartPlanned *time.Time                    `json:"startPlanned,omitempty"`
	Components   []models.ComponentRequirement `json:"components"`
	Notes        string                        `json:"notes,omitempty"`
}

// Actuals is what the operator reports when a run finishes.
type Actuals struct {
	QtyActual decimal.Decimal
	Notes     string
	// ExpiryDate is stamped on the output batch.
	ExpiryDate *time.Time
	// SanitationConfirmed frees the tank at once and logs the cleaning.
	SanitationConfirmed bool
	// KeepInTank leaves the output batch stored in the run's tank.
	KeepInTank bool
}
