package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/xcbolt/xcreport/internal/core"
	"github.com/xcbolt/xcreport/internal/util"
	"github.com/xcbolt/xcreport/internal/xcresult"
)

type GlobalFlags struct {
	JSON         bool
	EventVersion int
	Config       string
	Project      string
	Verbose      bool
}

func resolveProjectRoot(projectFlag string) (string, error) {
	start := projectFlag
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		start = wd
	}
	return util.FindProjectRoot(start)
}

type AppContext struct {
	ProjectRoot string
	ConfigPath  string
	Config      core.Config
	Emitter     core.Emitter
	Flags       GlobalFlags
}

func NewAppContext(flags GlobalFlags, out io.Writer) (AppContext, error) {
	root, err := resolveProjectRoot(flags.Project)
	if err != nil {
		return AppContext{}, err
	}
	cfg, err := core.LoadConfig(root, flags.Config)
	if err != nil {
		return AppContext{}, err
	}
	emit := core.Emitter(core.NewTextEmitter(out, flags.Verbose))
	if flags.JSON {
		if flags.EventVersion != core.EventSchemaVersion {
			return AppContext{}, fmt.Errorf("unsupported --event-version %d (supported: %d)", flags.EventVersion, core.EventSchemaVersion)
		}
		emit = core.NewNDJSONEmitter(out, flags.EventVersion)
	}
	cfgPath := flags.Config
	if cfgPath == "" {
		cfgPath = core.ConfigPath(root)
	}
	return AppContext{
		ProjectRoot: root,
		ConfigPath:  cfgPath,
		Config:      cfg,
		Emitter:     emit,
		Flags:       flags,
	}, nil
}

func PrintFatal(err error) {
	var ee ExitError
	if errors.As(err, &ee) {
		if ee.Err != nil {
			fmt.Fprintln(os.Stderr, ee.Error())
		}
		os.Exit(ee.Code)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

type ExitError struct {
	Code int
	Err  error
}

func (e ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "command failed"
}

func (e ExitError) Unwrap() error { return e.Err }

// failure reports err as an error event and maps it to the process exit
// status. The event already carries the message, so the returned ExitError
// prints nothing more.
func failure(cmd string, emit core.Emitter, err error) error {
	if errors.Is(err, context.Canceled) {
		emit.Emit(core.Warn(cmd, "Interrupted"))
		return ExitError{Code: core.InterruptExitCode}
	}
	emit.Emit(core.Err(cmd, errorObject(err)))
	return ExitError{Code: 1}
}

func errorObject(err error) core.ErrorObject {
	eo := core.ErrorObject{Code: "CONVERSION_FAILED", Message: err.Error()}
	var ce *xcresult.ConversionError
	if errors.As(err, &ce) {
		eo.Message = ce.Message
		if ce.Err != nil {
			eo.Message += ": " + ce.Err.Error()
		}
		eo.Detail = ce.Stderr
	}
	if errors.Is(err, core.ErrToolchainMissing) {
		eo.Code = "XCODE_NOT_INSTALLED"
		eo.Suggestion = "Run `xcreport doctor` to see which Xcode tools are missing."
	}
	return eo
}
