package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/batchworks/batchworks/internal/config"
	"github.com/batchworks/batchworks/internal/models"
	"github.com/batchworks/batchworks/internal/testutil"
)

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	assert.Equal(t, "batchworks", cmd.Use)
	assert.True(t, cmd.SilenceUsage)
	assert.True(t, cmd.SilenceErrors)

	for _, name := range []string{"config", "debug", "format", "locale"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing --%s", name)
	}
	assert.Equal(t, "text", cmd.PersistentFlags().Lookup("format").DefValue)

	names := make(map[string]*cobra.Command)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = sub
	}
	for _, want := range []string{
		"migrate", "seed", "backup", "restore", "check",
		"category", "item", "tank",
		"receive", "sell", "adjust", "plan", "ledger", "reconcile", "run",
	} {
		assert.Contains(t, names, want)
	}

	run := names["run"]
	var runSubs []string
	for _, sub := range run.Commands() {
		runSubs = append(runSubs, sub.Name())
	}
	assert.ElementsMatch(t, []string{
		"create", "plan", "start", "pause", "resume", "finish", "cancel", "delete", "show", "list",
	}, runSubs)
}

func TestRootCommand_RejectsBadGlobalFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"format", []string{"--format", "xml", "tank", "list"}},
		{"locale", []string{"--locale", "!!", "tank", "list"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.run(tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(NewExitError(ExitFailure, "x")))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "x", errors.New("boom"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&models.InsufficientStockError{ItemID: "x"}, CodeInsufficientStock},
		{&models.NotFoundError{Kind: "run", ID: "x"}, CodeNotFound},
		{&models.TransitionError{Status: models.RunStatusDraft, Event: models.EventPause}, CodeInvalidTransition},
		{&models.ConflictError{Unit: "u", Attempts: 5}, CodeConcurrentModification},
		{&models.ResourceUnavailableError{Code: "T1"}, CodeResourceUnavailable},
		{&models.ValidationError{Field: "f", Reason: "bad"}, CodeInvalidInput},
		{errors.New("disk on fire"), CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestOutputFormatter_JSON(t *testing.T) {
	var buf bytes.Buffer
	out := &OutputFormatter{Format: "json", Writer: &buf}

	require.NoError(t, out.Success(map[string]int{"n": 1}, nil))
	assert.JSONEq(t, `{"status":"ok","data":{"n":1}}`, buf.String())

	buf.Reset()
	err := out.Fail(&models.NotFoundError{Kind: "item", ID: "SYR"})
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.JSONEq(t, `{"status":"error","error":{"code":"NOT_FOUND","message":"item not found: SYR"}}`, buf.String())
}

func TestNumberFormatting(t *testing.T) {
	en := message.NewPrinter(language.English)
	de := message.NewPrinter(language.German)

	assert.Equal(t, "1,234.5", Qty(en, decimal.RequireFromString("1234.5")))
	assert.Equal(t, "1.234,5", Qty(de, decimal.RequireFromString("1234.5")))
	assert.Equal(t, "2.105263", Money(en, decimal.RequireFromString("2.105263")))
	assert.Equal(t, "2.00", Money(en, decimal.NewFromInt(2)))
	assert.Equal(t, "95%", Pct(en, decimal.NewFromInt(95)))
}

func TestTable_Render(t *testing.T) {
	tbl := NewTable("NAME", "QTY").AlignRight(1)
	tbl.Row("a", "5")
	tbl.Row("bb", "100")
	assert.Equal(t, 2, tbl.Len())

	var buf bytes.Buffer
	tbl.Render(&buf)
	out := buf.String()

	assert.Contains(t, out, "│ NAME │ QTY │")
	assert.Contains(t, out, "│ a    │   5 │")
	assert.Contains(t, out, "│ bb   │ 100 │")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

// harness runs commands against one in-memory App.
type harness struct {
	t   *testing.T
	app *App
	dir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Production.RetryBackoffMS = 0
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &harness{t: t, app: NewApp(cfg, testutil.NewTestDB(t), logger), dir: t.TempDir()}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	cmd := newRootCommand(&RootOptions{App: h.app})
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String() + stderr.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, out)
	return out
}

// jsonRun runs a command with --format json and decodes the envelope.
func (h *harness) jsonRun(data any, args ...string) (*CLIError, error) {
	h.t.Helper()
	out, err := h.run(append([]string{"--format", "json"}, args...)...)

	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	dec := json.NewDecoder(strings.NewReader(out))
	require.NoError(h.t, dec.Decode(&resp), out)
	if data != nil && resp.Data != nil {
		require.NoError(h.t, json.Unmarshal(resp.Data, data))
	}
	return resp.Error, err
}

func (h *harness) file(name, content string) string {
	h.t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(h.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (h *harness) catalogue() {
	h.t.Helper()
	h.mustRun("category", "add", "RAW", "Raw materials")
	h.mustRun("category", "add", "FG", "Finished goods")
	h.mustRun("item", "add", "SYRUP", "Syrup", "--uom", "l", "--category", "RAW", "--safety-stock", "20")
	h.mustRun("item", "add", "JUICE", "Juice", "--uom", "l", "--category", "FG")
	h.mustRun("tank", "add", "T1", "Blend tank")
}

const blendSpec = `opCode: OP-TEST-1
type: blend
product: JUICE
quantity: 40
line: L1
tank: T1
components:
  - sku: SYRUP
    quantity: 40
`

func TestProductionWorkflow(t *testing.T) {
	h := newHarness(t)
	h.catalogue()

	out := h.mustRun("receive", "SYRUP", "100", "--cost", "2", "--expiry", "2026-09-01")
	assert.Contains(t, out, "SYRUP")

	var run models.ProductionRun
	cliErr, err := h.jsonRun(&run, "run", "create", "-f", h.file("run.yaml", blendSpec))
	require.NoError(t, err)
	require.Nil(t, cliErr)
	assert.Equal(t, "OP-TEST-1", run.OpCode)
	assert.Equal(t, models.RunStatusDraft, run.Status)

	planPath := filepath.Join(h.dir, "plan.yaml")
	out = h.mustRun("run", "plan", "OP-TEST-1", "--out", planPath)
	assert.Contains(t, out, "Plan written to")

	written, err := os.ReadFile(planPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(written), "# Plan for run OP-TEST-1"))
	assert.Contains(t, string(written), "strategy: FIFO")

	cliErr, err = h.jsonRun(&run, "run", "start", "OP-TEST-1", "--plan", planPath, "--actor", "ana")
	require.NoError(t, err)
	require.Nil(t, cliErr)
	assert.Equal(t, models.RunStatusInProgress, run.Status)

	h.mustRun("run", "pause", "OP-TEST-1")
	h.mustRun("run", "resume", "OP-TEST-1")

	var finished struct {
		Run   models.ProductionRun `json:"run"`
		Batch models.ItemBatch     `json:"batch"`
	}
	cliErr, err = h.jsonRun(&finished, "run", "finish", "OP-TEST-1", "--qty", "38", "--sanitized")
	require.NoError(t, err)
	require.Nil(t, cliErr)
	assert.Equal(t, models.RunStatusFinished, finished.Run.Status)
	assert.Equal(t, "2.105263", finished.Batch.UnitCost.String())

	var tanks []models.Tank
	_, err = h.jsonRun(&tanks, "tank", "list")
	require.NoError(t, err)
	require.Len(t, tanks, 1)
	assert.Equal(t, models.TankStatusFree, tanks[0].Status)

	out = h.mustRun("reconcile")
	assert.Contains(t, out, "JUICE")
	assert.NotContains(t, out, "MISMATCH")

	out = h.mustRun("run", "show", "OP-TEST-1")
	assert.Contains(t, out, "95%")

	var ledger models.TransactionList
	_, err = h.jsonRun(&ledger, "ledger", "list", "--ref", "production_runs/"+run.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, ledger.Total)
}

func TestRunPlan_ShortagesExitNonZero(t *testing.T) {
	h := newHarness(t)
	h.catalogue()
	h.mustRun("receive", "SYRUP", "10", "--cost", "2")
	h.mustRun("run", "create", "-f", h.file("run.yaml", blendSpec))

	planPath := filepath.Join(h.dir, "plan.yaml")
	out, err := h.run("run", "plan", "OP-TEST-1", "--out", planPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "shortages are covered")
	assert.NoFileExists(t, planPath)
}

func TestSell_Errors(t *testing.T) {
	h := newHarness(t)
	h.catalogue()
	h.mustRun("receive", "SYRUP", "5", "--cost", "2")

	tests := []struct {
		name string
		args []string
		code string
	}{
		{"insufficient stock", []string{"sell", "SYRUP", "6"}, CodeInsufficientStock},
		{"unknown item", []string{"sell", "NOPE", "1"}, CodeNotFound},
		{"bad quantity", []string{"sell", "SYRUP", "lots"}, CodeInvalidInput},
		{"bad strategy", []string{"sell", "SYRUP", "1", "--strategy", "LIFO"}, CodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cliErr, err := h.jsonRun(nil, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			require.NotNil(t, cliErr)
			assert.Equal(t, tt.code, cliErr.Code)
		})
	}

	var res struct {
		SaleID string
	}
	cliErr, err := h.jsonRun(&res, "sell", "SYRUP", "5", "--sale", "S-1")
	require.NoError(t, err)
	require.Nil(t, cliErr)
	assert.Equal(t, "S-1", res.SaleID)
}

func TestRunCreate_RejectsUnknownFields(t *testing.T) {
	h := newHarness(t)
	h.catalogue()

	spec := blendSpec + "colour: red\n"
	cliErr, err := h.jsonRun(nil, "run", "create", "-f", h.file("run.yaml", spec))
	require.Error(t, err)
	require.NotNil(t, cliErr)
	assert.Equal(t, CodeInvalidInput, cliErr.Code)
}

func TestMigrateStatus(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun("migrate", "status")
	assert.Contains(t, out, "001")
}
