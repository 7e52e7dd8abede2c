package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrToolchainMissing is returned when xcrun cannot be run at all.
var ErrToolchainMissing = errors.New("Xcode command line tools are not installed")

const toolchainInstallHint = "Install Xcode (or run `xcode-select --install`) and make sure `xcrun` is on PATH."

// EnsureToolchain runs `xcrun --version` and fails with installation
// instructions when it does not succeed.
func EnsureToolchain(ctx context.Context, runner Runner, xcrun string) error {
	out := runner.Run(ctx, CmdSpec{Path: xcrun, Args: []string{"--version"}})
	if errors.Is(out.Err, context.Canceled) {
		return out.Err
	}
	if !out.Success() {
		return fmt.Errorf("%w (%s). %s", ErrToolchainMissing, out.ErrorDetail(), toolchainInstallHint)
	}
	return nil
}

type DoctorCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
	Hint   string `json:"hint,omitempty"`
}

type DoctorReport struct {
	Checks  []DoctorCheck    `json:"checks"`
	Version ToolchainVersion `json:"version"`
	Legacy  bool             `json:"legacy"`
}

func (r DoctorReport) OK() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

// Doctor checks that every tool the conversion pipeline shells out to is reachable.
func Doctor(ctx context.Context, runner Runner, cfg Config, emit Emitter) DoctorReport {
	rep := DoctorReport{Checks: []DoctorCheck{}}

	check := func(name string, args []string, hint string) {
		EmitMaybe(emit, Status("doctor", name, nil))
		out := runner.Run(ctx, CmdSpec{Path: cfg.Xcrun, Args: args})
		if !out.Success() {
			rep.Checks = append(rep.Checks, DoctorCheck{Name: name, OK: false, Detail: out.ErrorDetail(), Hint: hint})
			EmitMaybe(emit, Warn("doctor", fmt.Sprintf("%s: %s", name, out.ErrorDetail())))
			return
		}
		rep.Checks = append(rep.Checks, DoctorCheck{Name: name, OK: true, Detail: firstLine(out.Stdout)})
	}

	check("xcrun available", []string{"--version"}, toolchainInstallHint)
	check("xcodebuild available", []string{"xcodebuild", "-version"}, "Install Xcode and ensure xcode-select points at it.")
	check("xcresulttool available", []string{"xcresulttool", "version"}, "xcresulttool is part of Xcode.")
	check("xccov available", []string{"xccov", "help"}, "xccov is part of Xcode.")

	rep.Version = DetermineToolchainVersion(ctx, runner, cfg.Xcrun, emit)
	rep.Legacy = len(LegacyFlags(rep.Version)) > 0
	legacy := "without"
	if rep.Legacy {
		legacy = "with"
	}
	EmitMaybe(emit, Status("doctor", fmt.Sprintf("Xcode %s: xcresulttool runs %s --legacy", rep.Version, legacy), nil))
	if !rep.OK() {
		names := []string{}
		for _, c := range rep.Checks {
			if !c.OK {
				names = append(names, c.Name)
			}
		}
		EmitMaybe(emit, Warn("doctor", "Failed checks: "+strings.Join(names, ", ")))
	}
	return rep
}
