package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/batchworks/batchworks/internal/models"
	"github.com/batchworks/batchworks/internal/services/production"
)

// runSpecFile is the YAML form of a run to create. Items and tanks are named
// by SKU and code.
//
//	type: blend
//	product: BLEND-LEM
//	quantity: 40
//	line: L1
//	tank: T-01
//	components:
//	  - sku: SYR-CANE
//	    quantity: 40
type runSpecFile struct {
	OpCode       string          `yaml:"opCode,omitempty"`
	Type         models.RunType  `yaml:"type"`
	Product      string          `yaml:"product"`
	Quantity     decimal.Decimal `yaml:"quantity"`
	Line         string          `yaml:"line"`
	Tank         string          `yaml:"tank,omitempty"`
	StartPlanned *time.Time      `yaml:"startPlanned,omitempty"`
	Components   []componentFile `yaml:"components"`
	Notes        string          `yaml:"notes,omitempty"`
}

type componentFile struct {
	SKU      string          `yaml:"sku"`
	Quantity decimal.Decimal `yaml:"quantity"`
}

// readFile reads path, or stdin when path is "-".
func readFile(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func decodeStrict(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(v)
}

func readRunSpec(path string, stdin io.Reader) (*runSpecFile, error) {
	data, err := readFile(path, stdin)
	if err != nil {
		return nil, fmt.Errorf("reading run spec: %w", err)
	}
	var f runSpecFile
	if err := decodeStrict(data, &f); err != nil {
		return nil, &models.ValidationError{Field: "spec", Reason: fmt.Sprintf("parsing %s: %v", path, err)}
	}
	return &f, nil
}

// resolve turns SKUs and tank codes into IDs.
func (f *runSpecFile) resolve(ctx context.Context, app *App) (production.RunSpec, error) {
	spec := production.RunSpec{
		OpCode:       f.OpCode,
		Type:         f.Type,
		ProductSKU:   f.Product,
		QtyPlanned:   f.Quantity,
		LineID:       f.Line,
		StartPlanned: f.StartPlanned,
		Notes:        f.Notes,
	}
	if f.Tank != "" {
		tank, err := resolveTank(ctx, app, f.Tank)
		if err != nil {
			return spec, err
		}
		spec.TankID = &tank.ID
	}
	for _, c := range f.Components {
		item, err := resolveItem(ctx, app, c.SKU)
		if err != nil {
			return spec, fmt.Errorf("component %s: %w", c.SKU, err)
		}
		spec.Components = append(spec.Components, models.ComponentRequirement{
			ItemID:   item.ID,
			Quantity: c.Quantity,
		})
	}
	return spec, nil
}

// writePlan writes a run plan as YAML for the operator to review and pass
// back to "run start --plan".
func writePlan(w io.Writer, run *models.ProductionRun, plan *models.RunPlan) error {
	fmt.Fprintf(w, "# Plan for run %s (%s %s). Review before starting.\n", run.OpCode, run.QtyPlanned, run.ProductSKU)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(plan); err != nil {
		return fmt.Errorf("encoding plan: %w", err)
	}
	return enc.Close()
}

func writePlanFile(path string, run *models.ProductionRun, plan *models.RunPlan) error {
	var buf bytes.Buffer
	if err := writePlan(&buf, run, plan); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing plan: %w", err)
	}
	return nil
}

func readPlan(path string, stdin io.Reader) (*models.RunPlan, error) {
	data, err := readFile(path, stdin)
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}
	var plan models.RunPlan
	if err := decodeStrict(data, &plan); err != nil {
		return nil, &models.ValidationError{Field: "plan", Reason: fmt.Sprintf("parsing %s: %v", path, err)}
	}
	return &plan, nil
}
