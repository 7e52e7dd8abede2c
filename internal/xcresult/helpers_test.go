package xcresult

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xcbolt/xcreport/internal/core"
)

type fakeFile struct {
	name     string
	coverage string
}

// fakeXcode answers xcrun invocations the way Xcode's tools would.
type fakeXcode struct {
	mu    sync.Mutex
	calls [][]string

	missing bool
	// version is the stdout of `xcodebuild -version`; empty fails the call.
	version string
	// objects maps a bundle path, or its base name, to its `xcresulttool get` JSON.
	objects map[string]string
	// archives maps an archive base name to its source files in list order.
	archives map[string][]fakeFile
	// bulk enables `xccov view --archive` without --file.
	bulk bool
	// failExport fails every `xcresulttool export`.
	failExport bool
	slow       map[string]time.Duration
	failFiles  map[string]bool
}

func newFakeXcode() *fakeXcode {
	return &fakeXcode{
		version:   "Xcode 16.2\nBuild version 16C5032a\n",
		objects:   map[string]string{},
		archives:  map[string][]fakeFile{},
		slow:      map[string]time.Duration{},
		failFiles: map[string]bool{},
	}
}

func (f *fakeXcode) toolchain(v core.ToolchainVersion) Toolchain {
	return Toolchain{Runner: f, Xcrun: "xcrun", Version: v}
}

func (f *fakeXcode) Run(ctx context.Context, spec core.CmdSpec) core.CmdOutput {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), spec.Args...))
	f.mu.Unlock()

	if f.missing {
		return core.CmdOutput{ExitCode: -1, Err: exec.ErrNotFound}
	}
	args := spec.Args
	switch {
	case len(args) == 1 && args[0] == "--version":
		return ok("xcrun version 70.\n")
	case len(args) >= 2 && args[0] == "xcodebuild" && args[1] == "-version":
		if f.version == "" {
			return fail("xcode-select: error: tool 'xcodebuild' requires Xcode")
		}
		return ok(f.version)
	case len(args) >= 2 && args[0] == "xcresulttool" && args[1] == "get":
		bundle := flagValue(args, "--path")
		doc, found := f.objects[bundle]
		if !found {
			doc, found = f.objects[filepath.Base(bundle)]
		}
		if !found {
			return fail("Error: result bundle not found")
		}
		return ok(doc)
	case len(args) >= 2 && args[0] == "xcresulttool" && args[1] == "export":
		if f.failExport {
			return fail("Error: export failed")
		}
		dest := flagValue(args, "--output-path")
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return fail(err.Error())
		}
		_ = os.WriteFile(filepath.Join(dest, "id"), []byte(flagValue(args, "--id")), 0o644)
		return ok("")
	case len(args) >= 3 && args[0] == "xccov" && args[1] == "view":
		return f.xccov(ctx, args)
	}
	return fail("unexpected command: " + strings.Join(args, " "))
}

func (f *fakeXcode) xccov(ctx context.Context, args []string) core.CmdOutput {
	files, found := f.archives[filepath.Base(flagValue(args, "--archive"))]
	if !found {
		return fail("Error: archive not found")
	}
	switch {
	case hasFlag(args, "--file-list"):
		var b strings.Builder
		for _, ff := range files {
			b.WriteString(ff.name + "\n")
		}
		return ok(b.String())
	case hasFlag(args, "--file"):
		name := flagValue(args, "--file")
		if d := f.slow[name]; d > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return core.CmdOutput{ExitCode: core.InterruptExitCode, Err: ctx.Err()}
			}
		}
		if err := ctx.Err(); err != nil {
			return core.CmdOutput{ExitCode: core.InterruptExitCode, Err: err}
		}
		if f.failFiles[name] {
			return fail("Error: no coverage for " + name)
		}
		for _, ff := range files {
			if ff.name == name {
				return ok(ff.coverage)
			}
		}
		return fail("Error: unknown file " + name)
	default:
		if !f.bulk {
			return fail("Error: --file or --file-list is required")
		}
		sorted := append([]fakeFile(nil), files...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].name < sorted[j].name })
		var b strings.Builder
		for _, ff := range sorted {
			b.WriteString(ff.name + "\n" + ff.coverage)
		}
		return ok(b.String())
	}
}

func (f *fakeXcode) callsWith(prefix ...string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := [][]string{}
	for _, c := range f.calls {
		if len(c) < len(prefix) {
			continue
		}
		match := true
		for i, p := range prefix {
			if c[i] != p {
				match = false
				break
			}
		}
		if match {
			out = append(out, c)
		}
	}
	return out
}

func ok(stdout string) core.CmdOutput {
	return core.CmdOutput{Stdout: []byte(stdout)}
}

func fail(stderr string) core.CmdOutput {
	return core.CmdOutput{ExitCode: 1, Stderr: []byte(stderr)}
}

func flagValue(args []string, flag string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *recordingEmitter) Emit(ev core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEmitter) messages(typ string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []string{}
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev.Msg)
		}
	}
	return out
}

func mkdir(t *testing.T, path string) string {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

// actionsJSON renders an ActionsInvocationRecord the way xcresulttool does.
// Each action is {archiveID, testPlan}; an empty archiveID means no coverage.
func actionsJSON(actions ...[2]string) string {
	var items []string
	for _, a := range actions {
		coverage := `{"_type":{"_name":"CodeCoverageInfo"}}`
		if a[0] != "" {
			coverage = `{"_type":{"_name":"CodeCoverageInfo"},` +
				`"hasCoverageData":{"_type":{"_name":"Bool"},"_value":"true"},` +
				`"archiveRef":{"_type":{"_name":"Reference"},"id":{"_type":{"_name":"String"},"_value":"` + a[0] + `"}},` +
				`"reportRef":{"_type":{"_name":"Reference"},"id":{"_type":{"_name":"String"},"_value":"report-` + a[0] + `"}}}`
		}
		plan := ""
		if a[1] != "" {
			plan = `"testPlanName":{"_type":{"_name":"String"},"_value":"` + a[1] + `"},`
		}
		items = append(items, `{"_type":{"_name":"ActionRecord"},`+
			`"schemeCommandName":{"_type":{"_name":"String"},"_value":"Test"},`+plan+
			`"actionResult":{"_type":{"_name":"ActionResult"},"coverage":`+coverage+`}}`)
	}
	return `{"_type":{"_name":"ActionsInvocationRecord"},` +
		`"metadataRef":{"_type":{"_name":"Reference"},"id":{"_type":{"_name":"String"},"_value":"meta"}},` +
		`"actions":{"_type":{"_name":"Array"},"_values":[` + strings.Join(items, ",") + `]}}`
}
