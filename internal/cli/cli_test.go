package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/landing-lab/landing-lab/internal/combos"
	"github.com/landing-lab/landing-lab/internal/ledger"
	"github.com/landing-lab/landing-lab/internal/stats"
)

type harness struct {
	t      *testing.T
	dir    string
	dbPath string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{"LL_DB_PATH", "LL_PORT", "LL_CATALOGUE", "LL_LOG_LEVEL", "LL_SERVER_URL"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	return &harness{t: t, dir: dir, dbPath: filepath.Join(dir, "llab.db")}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--db", h.dbPath, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "llab %s", strings.Join(args, " "))
	return out
}

func TestCreateListShow(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("list")
	assert.Contains(t, out, "No experiments yet.")

	out = h.mustRun("create", "hero", "--variants", "control,treatment", "--min-sample", "50")
	assert.Contains(t, out, "Created experiment 'hero' with 2 variants:")
	assert.Contains(t, out, "control: 50% (control)")
	assert.Contains(t, out, "Minimum sample: 50 per variant")

	out = h.mustRun("create", "cta", "--variants", "a,b,c", "--split", "50,25,25")
	assert.Contains(t, out, "b: 25%")

	out = h.mustRun("list")
	assert.Contains(t, out, "hero")
	assert.Contains(t, out, "ACTIVE")

	out = h.mustRun("show", "hero")
	var exp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &exp))
	assert.Equal(t, "hero", exp["testId"])
	assert.Equal(t, float64(50), exp["minSampleSize"])
}

func TestCreate_FromFile(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(h.dir, "def.json")
	def := `{
  "testId": "hero",
  "variants": [
    {"variantId": "control"},
    {"variantId": "bold", "implementation": {"patches": [{"selector": "h1", "action": "text", "value": "Ship faster"}]}}
  ],
  "trafficSplit": {"control": 40, "bold": 60}
}`
	require.NoError(t, os.WriteFile(path, []byte(def), 0644))

	out := h.mustRun("create", "--file", path)
	assert.Contains(t, out, "bold: 60%")
}

func TestCreate_Rejected(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("create", "hero", "--variants", "control,treatment", "--split", "50,40")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trafficSplit")

	_, err = h.run("create", "hero", "--variants", "solo")
	assert.Error(t, err)

	h.mustRun("create", "hero", "--variants", "a,b")
	_, err = h.run("create", "hero", "--variants", "a,b")
	assert.ErrorContains(t, err, "already exists")
}

func TestAssign(t *testing.T) {
	h := newHarness(t)
	h.mustRun("create", "exp1", "--variants", "control,treatment")

	out := h.mustRun("assign", "exp1", "visitor-1")
	assert.Equal(t, "visitor-1 -> treatment (treatment, bucket 68.35)\n", out)

	out = h.mustRun("assign", "exp1", "visitor-2")
	assert.Contains(t, out, "-> control (control, bucket 31.16)")

	_, err := h.run("assign", "ghost", "visitor-1")
	assert.ErrorContains(t, err, "not found")
}

func TestRecordAndResults(t *testing.T) {
	h := newHarness(t)
	h.mustRun("create", "exp1", "--variants", "control,treatment", "--min-sample", "5")

	out := h.mustRun("results", "exp1")
	assert.Contains(t, out, "No data recorded yet.")

	for i := 0; i < 10; i++ {
		args := []string{"record", "exp1", "control"}
		if i < 1 {
			args = append(args, "--converted")
		}
		h.mustRun(args...)

		args = []string{"record", "exp1", "treatment", "--time", "30"}
		if i < 9 {
			args = append(args, "--converted")
		}
		h.mustRun(args...)
	}

	out = h.mustRun("results", "exp1")
	assert.Contains(t, out, "← WINNER")
	assert.Contains(t, out, "Implement treatment")

	out = h.mustRun("results", "exp1", "--json")
	var analysis stats.Analysis
	require.NoError(t, json.Unmarshal([]byte(out), &analysis))
	assert.Equal(t, stats.OutcomeSignificant, analysis.Outcome)
	assert.Equal(t, "treatment", analysis.Winner)
	assert.Equal(t, 10, analysis.Variants[1].Impressions)
	assert.Equal(t, 9, analysis.Variants[1].Conversions)

	out = h.mustRun("results", "ghost")
	assert.Equal(t, "No data: experiment 'ghost' not found\n", out)
}

func TestRecord_ExtraData(t *testing.T) {
	h := newHarness(t)
	h.mustRun("create", "hero", "--variants", "a,b")

	out := h.mustRun("record", "hero", "a", "--cta", "--data", `{"source":"email"}`)
	assert.Contains(t, out, "1 impressions, 0 conversions, 1 CTA clicks")

	_, err := h.run("record", "hero", "a", "--data", "{")
	assert.ErrorContains(t, err, "invalid --data JSON")
}

func TestStop(t *testing.T) {
	h := newHarness(t)
	h.mustRun("create", "hero", "--variants", "a,b")

	out := h.mustRun("stop", "hero", "--yes", "--reason", "b won")
	assert.Equal(t, "Stopped experiment 'hero': b won\n", out)

	_, err := h.run("record", "hero", "a")
	assert.ErrorIs(t, err, ledger.ErrExperimentStopped)

	out = h.mustRun("assign", "hero", "visitor-1")
	assert.Contains(t, out, "experiment is stopped")
}

func TestExport(t *testing.T) {
	h := newHarness(t)
	h.mustRun("create", "hero", "--variants", "a,b")
	h.mustRun("record", "hero", "a", "--converted", "--scroll", "75")
	h.mustRun("record", "hero", "b")

	out := h.mustRun("export", "hero")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp,variant,event_id,converted,cta_click,time_on_page,scroll_depth,data", lines[0])
	assert.Contains(t, lines[1], ",a,")
	assert.Contains(t, lines[1], ",true,false,0,75,")

	gzPath := filepath.Join(h.dir, "hero.json.gz")
	h.mustRun("export", "hero", "--format", "json", "--gzip", "-o", gzPath)

	f, err := os.Open(gzPath)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)

	var export jsonExport
	require.NoError(t, json.NewDecoder(zr).Decode(&export))
	assert.Equal(t, "hero", export.Experiment)
	require.Len(t, export.Variants, 2)
	assert.Equal(t, 1, export.Variants[0].Conversions)

	_, err = h.run("export", "hero", "--format", "xml")
	assert.Error(t, err)
}

func TestSnippet(t *testing.T) {
	h := newHarness(t)
	h.mustRun("create", "hero", "--variants", "a,b")

	out := h.mustRun("snippet", "hero", "--server-url", "https://lab.example.com/", "--format", "html")
	assert.Contains(t, out, " vl.js")
	assert.Contains(t, out, " snippet.html")
	assert.Contains(t, out, `var S="https://lab.example.com";`)
	assert.Contains(t, out, `src="https://lab.example.com/vl.js?experiment=hero"`)
}

func TestCombos(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(h.dir, "patterns.yaml")
	catalogue := `
version: "1"
patterns:
  - id: p1
    name: Recent buyers
    category: social_proof
    status: production
    performance: {average_lift: 8}
  - id: p2
    name: Low stock
    category: scarcity
    status: production
    performance: {average_lift: 6}
  - id: p3
    category: urgency
    status: draft
    performance: {average_lift: 20}
`
	require.NoError(t, os.WriteFile(path, []byte(catalogue), 0644))

	out := h.mustRun("combos", "--catalogue", path, "--json")
	var report combos.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.Summary.TotalTested)
	assert.Greater(t, report.TopCombinations[0].PredictedLift, 14.48)

	out = h.mustRun("combos", "--catalogue", path, "--all-statuses")
	assert.Contains(t, out, "Tested 3 combinations")
	assert.Contains(t, out, "Recent buyers + Low stock")
	assert.Contains(t, out, "Implementation plan:")

	_, err := h.run("combos", "--catalogue", filepath.Join(h.dir, "missing.json"))
	assert.Error(t, err)
}

func TestToken(t *testing.T) {
	h := newHarness(t)
	tokenFile := filepath.Join(h.dir, "token")
	configPath := filepath.Join(h.dir, "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("[server]\nport = 9000\ntoken_file = \""+tokenFile+"\"\n"), 0644))

	_, err := h.run("--config", configPath, "token")
	assert.ErrorContains(t, err, "no server running")

	require.NoError(t, os.WriteFile(tokenFile, []byte("abc123\n"), 0600))
	out := h.mustRun("--config", configPath, "token")
	assert.Contains(t, out, "http://localhost:9000/api/experiments?token=abc123")
}

// headerOnlyWriter accepts the first write and fails every later one.
type headerOnlyWriter struct {
	writes int
}

func (w *headerOnlyWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.writes > 1 {
		return 0, errors.New("disk full")
	}
	return len(p), nil
}

func TestWriteOutput_ReportsGzipFooterFailure(t *testing.T) {
	err := writeOutput(&headerOnlyWriter{}, true, func(w io.Writer) error {
		_, err := io.WriteString(w, "variant,impressions\n")
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gzip")
}

func TestWriteOutput_Plain(t *testing.T) {
	var buf bytes.Buffer
	err := writeOutput(&buf, false, func(w io.Writer) error {
		_, err := io.WriteString(w, "ok")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", buf.String())
}
