package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/nao1215/gridwatch/internal/config"
	"github.com/nao1215/gridwatch/internal/model"
)

const pageWithEmptyPhone = `<html><head><title>Overview</title></head><body>
<table id="clients">
<thead><tr><th>ID</th><th>Name</th><th>Phone</th></tr></thead>
<tbody>
<tr><td>1</td><td>Anna Schmidt</td><td>&nbsp;</td></tr>
<tr><td>2</td><td>Bernd Meier</td><td>0171 123</td></tr>
</tbody></table>
</body></html>`

const pageAllFilled = `<html><head><title>Overview</title></head><body>
<table id="clients">
<thead><tr><th>ID</th><th>Name</th><th>Phone</th></tr></thead>
<tbody>
<tr><td>2</td><td>Bernd Meier</td><td>0171 123</td></tr>
<tr><td>1</td><td>Anna Schmidt</td><td>0171 999</td></tr>
</tbody></table>
</body></html>`

const singleTargetConfig = `targets:
  ward:
    url: "https://example.com/mp/#overview"
    stable_columns: ["ID"]
    column_descriptions:
      phone: "Needed before a visit."
`

// cliEnv runs commands against a temp config, database and artifact dir.
type cliEnv struct {
	cfgPath     string
	dbDir       string
	artifactDir string
	htmlPath    string
}

func newCLIEnv(t *testing.T, cfg string) *cliEnv {
	t.Helper()

	// Keep the developer's credentials out of the test.
	for _, key := range []string{
		config.EnvChatToken, config.EnvChatID, config.EnvWebhookURL, config.EnvAPIKey, config.EnvTargetURL,
	} {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	e := &cliEnv{
		cfgPath:     filepath.Join(dir, config.DefaultConfigFile),
		dbDir:       filepath.Join(dir, "data"),
		artifactDir: filepath.Join(dir, "cache"),
		htmlPath:    filepath.Join(dir, "page.html"),
	}
	if err := os.WriteFile(e.cfgPath, []byte(cfg), 0600); err != nil {
		t.Fatal(err)
	}
	e.setPage(t, pageWithEmptyPhone)
	return e
}

func (e *cliEnv) setPage(t *testing.T, html string) {
	t.Helper()
	if err := os.WriteFile(e.htmlPath, []byte(html), 0600); err != nil {
		t.Fatal(err)
	}
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append(args,
		"--config", e.cfgPath,
		"--db-dir", e.dbDir,
		"--artifact-dir", e.artifactDir,
	))
	err := root.Execute()
	return out.String(), err
}

func (e *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("gridwatch %s: %v\noutput:\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func decodeRun(t *testing.T, out string) *model.CheckRun {
	t.Helper()
	var run model.CheckRun
	if err := json.Unmarshal([]byte(out), &run); err != nil {
		t.Fatalf("failed to decode run: %v\n%s", err, out)
	}
	return &run
}

func (e *cliEnv) check(t *testing.T) *model.CheckRun {
	t.Helper()
	return decodeRun(t, e.mustRun(t, "check", "--html-file", e.htmlPath, "--no-deliver", "--json"))
}

func TestCommandsLifecycle(t *testing.T) {
	e := newCLIEnv(t, singleTargetConfig)

	first := e.check(t)
	if first.Stats.Open != 1 || first.Stats.New != 1 {
		t.Fatalf("first check stats = %+v, want 1 new open finding", first.Stats)
	}
	matches, err := filepath.Glob(filepath.Join(e.artifactDir, "empty_cells_*.json"))
	if err != nil || len(matches) != 1 {
		t.Errorf("exports = %v (%v), want one empty_cells file", matches, err)
	}

	listed := decodeRun(t, e.mustRun(t, "findings", "--json"))
	if len(listed.Findings) != 1 || listed.Findings[0].ColumnName != "Phone" {
		t.Fatalf("findings = %+v, want the empty Phone cell", listed.Findings)
	}
	id := listed.Findings[0].ID

	if out := e.mustRun(t, "findings", "--yaml"); !strings.Contains(out, "column: Phone") || !strings.Contains(out, id) {
		t.Errorf("findings --yaml = %q", out)
	}
	if byName := decodeRun(t, e.mustRun(t, "findings", "--column", "name", "--json")); len(byName.Findings) != 0 {
		t.Errorf("findings --column name = %+v, want none", byName.Findings)
	}

	if out := e.mustRun(t, "comment", id, "asked", "the", "ward"); !strings.Contains(out, "Added comment") {
		t.Errorf("comment = %q", out)
	}
	if out := e.mustRun(t, "comment", id); !strings.Contains(out, "asked the ward") {
		t.Errorf("comment list = %q", out)
	}

	if out := e.mustRun(t, "columns", "--markdown"); !strings.Contains(out, "Columns of ward") || !strings.Contains(out, "Phone") {
		t.Errorf("columns --markdown = %q", out)
	}

	// Reordered rows with the phone filled in resolve the finding.
	e.setPage(t, pageAllFilled)
	second := e.check(t)
	if second.Stats.Open != 0 || second.Stats.Resolved != 1 {
		t.Errorf("second check stats = %+v, want the finding resolved", second.Stats)
	}

	if out := e.mustRun(t, "stats"); !strings.Contains(out, "All cells are filled.") {
		t.Errorf("stats = %q", out)
	}

	var histories []targetHistory
	if err := json.Unmarshal([]byte(e.mustRun(t, "history", "--json")), &histories); err != nil {
		t.Fatalf("failed to decode history: %v", err)
	}
	if len(histories) != 1 || len(histories[0].Runs) < 2 {
		t.Fatalf("history = %+v, want two stored checks", histories)
	}
	latest := histories[0].Runs[0]

	var cmp Comparison
	out := e.mustRun(t, "history", "--run-id", strconv.FormatInt(latest.ID, 10), "--json")
	if err := json.Unmarshal([]byte(out), &cmp); err != nil {
		t.Fatalf("failed to decode comparison: %v", err)
	}
	if cmp.Trend != trendImproved || cmp.Delta != -1 {
		t.Errorf("comparison = %+v, want improved by one", cmp)
	}

	exportPath := filepath.Join(t.TempDir(), "export.json")
	e.mustRun(t, "export", "-o", exportPath)
	if out := e.mustRun(t, "import", exportPath); !strings.Contains(out, "Imported 1 findings (0 open) and 1 comments") {
		t.Errorf("import = %q", out)
	}

	// The resolved finding carries a comment, so it is kept.
	if out := e.mustRun(t, "purge", "--max-age", "1ns"); !strings.Contains(out, "ward: deleted 0 findings") {
		t.Errorf("purge = %q", out)
	}
	listed = decodeRun(t, e.mustRun(t, "findings", "--all", "--json"))
	if len(listed.Findings) != 1 {
		t.Errorf("findings after purge = %+v, want the commented finding", listed.Findings)
	}
}

func TestCheckPrintMessages(t *testing.T) {
	e := newCLIEnv(t, singleTargetConfig)

	out := e.mustRun(t, "check", "--html-file", e.htmlPath, "--no-persist", "--print-messages")
	for _, want := range []string{
		"Found empty cells: 1",
		"📊 Phone (1 cells):",
		"ℹ️ Needed before a visit.",
		"[file] ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not contain %q:\n%s", want, out)
		}
	}
}

func TestCommandErrors(t *testing.T) {
	t.Run("unknown finding", func(t *testing.T) {
		e := newCLIEnv(t, singleTargetConfig)
		_, err := e.run(t, "comment", "nope", "text")
		if err == nil || !strings.Contains(err.Error(), "finding not found") {
			t.Errorf("err = %v, want finding not found", err)
		}
	})

	t.Run("conflicting formats", func(t *testing.T) {
		e := newCLIEnv(t, singleTargetConfig)
		_, err := e.run(t, "check", "--html-file", e.htmlPath, "--json", "--markdown")
		if !errors.Is(err, config.ErrConflictingReportFormats) {
			t.Errorf("err = %v, want ErrConflictingReportFormats", err)
		}
	})

	t.Run("missing explicit config", func(t *testing.T) {
		e := newCLIEnv(t, singleTargetConfig)
		e.cfgPath = filepath.Join(t.TempDir(), "missing.yaml")
		_, err := e.run(t, "stats")
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("err = %v, want ErrConfigNotFound", err)
		}
	})

	t.Run("unknown target", func(t *testing.T) {
		e := newCLIEnv(t, singleTargetConfig)
		_, err := e.run(t, "stats", "-t", "ward-z")
		var unknown *config.UnknownTargetError
		if !errors.As(err, &unknown) {
			t.Errorf("err = %v, want UnknownTargetError", err)
		}
	})

	t.Run("single target commands", func(t *testing.T) {
		e := newCLIEnv(t, singleTargetConfig+`  ward-b:
    url: "https://example.com/b"
`)
		_, err := e.run(t, "export")
		if !errors.Is(err, errNeedOneTarget) {
			t.Errorf("err = %v, want errNeedOneTarget", err)
		}
	})

	t.Run("history without database", func(t *testing.T) {
		e := newCLIEnv(t, singleTargetConfig)
		_, err := e.run(t, "history", "--no-persist")
		if !errors.Is(err, errNoDatabase) {
			t.Errorf("err = %v, want errNoDatabase", err)
		}
	})
}
