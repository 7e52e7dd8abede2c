package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xcbolt/xcreport/internal/core"
	"github.com/xcbolt/xcreport/internal/report"
	"github.com/xcbolt/xcreport/internal/util"
)

// bulkXcode answers every xcrun call successfully; `xccov view --archive`
// returns one fixed report.
type bulkXcode struct {
	missing bool
}

func (b bulkXcode) Run(_ context.Context, spec core.CmdSpec) core.CmdOutput {
	if b.missing {
		return core.CmdOutput{ExitCode: -1, Err: exec.ErrNotFound}
	}
	args := strings.Join(spec.Args, " ")
	switch {
	case args == "xcodebuild -version":
		return core.CmdOutput{Stdout: []byte("Xcode 16.2\n")}
	case strings.HasPrefix(args, "xccov view --archive"):
		return core.CmdOutput{Stdout: []byte("a.swift\n  1: 1\n")}
	}
	return core.CmdOutput{}
}

func testAppContext(t *testing.T, ndjson bool) (AppContext, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cfg := core.DefaultConfig()
	cfg.WorkDir = t.TempDir()
	var emit core.Emitter = core.NewTextEmitter(&out, false)
	if ndjson {
		emit = core.NewNDJSONEmitter(&out, core.EventSchemaVersion)
	}
	return AppContext{ProjectRoot: t.TempDir(), Config: cfg, Emitter: emit, Flags: GlobalFlags{JSON: ndjson}}, &out
}

func TestRunConvertWritesManifestAndMetrics(t *testing.T) {
	ac, out := testAppContext(t, true)
	in := t.TempDir()
	archive := filepath.Join(in, "Unit.xccovarchive")
	if err := os.MkdirAll(archive, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	ac.Config.MetricsFile = filepath.Join(t.TempDir(), "xcreport.prom")
	manifest := filepath.Join(t.TempDir(), "manifest.json")

	if err := runConvert(context.Background(), ac, bulkXcode{}, "xcode", []string{archive}, manifest); err != nil {
		t.Fatalf("runConvert: %v", err)
	}

	var got report.Reports
	if err := util.ReadJSONFile(manifest, &got); err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	want := filepath.Join(in, "Unit.xccovarchive.xccov")
	if files := got["XCODE"]; len(files) != 1 || files[0] != want {
		t.Fatalf("manifest = %v", got)
	}
	if b, err := os.ReadFile(want); err != nil || string(b) != "a.swift\n  1: 1\n" {
		t.Fatalf("report = %q, %v", b, err)
	}

	prom, err := os.ReadFile(ac.Config.MetricsFile)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(prom), "xcreport_reports_total 1") {
		t.Fatalf("metrics lack report count:\n%s", prom)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	var last core.Event
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
		t.Fatalf("decode last event: %v", err)
	}
	if last.Type != "result" {
		t.Fatalf("last event = %+v", last)
	}
}

func TestRunConvertPassesOtherFormatsThrough(t *testing.T) {
	ac, out := testAppContext(t, false)
	if err := runConvert(context.Background(), ac, bulkXcode{missing: true}, "LCOV", []string{"coverage/lcov.info"}, ""); err != nil {
		t.Fatalf("runConvert: %v", err)
	}
	if !strings.Contains(out.String(), "LCOV report: coverage/lcov.info") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestRunConvertMissingToolchain(t *testing.T) {
	ac, out := testAppContext(t, true)
	err := runConvert(context.Background(), ac, bulkXcode{missing: true}, "XCODE", []string{"/x/a.xcresult"}, "")
	var ee ExitError
	if !errors.As(err, &ee) || ee.Code != 1 {
		t.Fatalf("err = %v, want ExitError 1", err)
	}
	if !strings.Contains(out.String(), `"code":"XCODE_NOT_INSTALLED"`) {
		t.Fatalf("error event lacks code: %s", out.String())
	}
}

func TestRunConvertInterrupted(t *testing.T) {
	ac, _ := testAppContext(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := runConvert(ctx, ac, cancelledXcode{}, "XCODE", []string{"/x/a.xcresult"}, "")
	var ee ExitError
	if !errors.As(err, &ee) || ee.Code != core.InterruptExitCode {
		t.Fatalf("err = %v, want ExitError %d", err, core.InterruptExitCode)
	}
}

type cancelledXcode struct{}

func (cancelledXcode) Run(ctx context.Context, _ core.CmdSpec) core.CmdOutput {
	return core.CmdOutput{ExitCode: -1, Err: ctx.Err()}
}

func TestErrorObjectUnwrapsConversionError(t *testing.T) {
	ac, out := testAppContext(t, false)
	dir := t.TempDir()
	err := runConvert(context.Background(), ac, bulkXcode{}, "XCODE", []string{filepath.Join(dir, "notes.txt")}, "")
	if err == nil {
		t.Fatalf("expected error for unrecognised input")
	}
	if !strings.Contains(out.String(), "is not an Xcode coverage report") {
		t.Fatalf("output = %q", out.String())
	}
}
