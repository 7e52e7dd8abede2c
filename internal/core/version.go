package core

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// ToolchainVersion is the installed Xcode major/minor version.
type ToolchainVersion struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

// LatestToolchainVersion is assumed when the installed version cannot be determined.
var LatestToolchainVersion = ToolchainVersion{Major: math.MaxInt, Minor: math.MaxInt}

// legacyMajor is the first Xcode release whose xcresulttool needs --legacy
// for the object-tree get/export commands.
const legacyMajor = 16

func (v ToolchainVersion) String() string {
	if v == LatestToolchainVersion {
		return "latest"
	}
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// AtLeastMajor reports whether the major version is >= major.
func (v ToolchainVersion) AtLeastMajor(major int) bool {
	return v.Major >= major
}

// LegacyFlags returns the extra xcresulttool flags required by this version.
func LegacyFlags(v ToolchainVersion) []string {
	if v.AtLeastMajor(legacyMajor) {
		return []string{"--legacy"}
	}
	return nil
}

var xcodeVersionRE = regexp.MustCompile(`^Xcode (\d+)\.(\d+)`)

// ParseToolchainVersion reads the first "Xcode <major>.<minor>" line of `xcodebuild -version` output.
func ParseToolchainVersion(out []byte) (ToolchainVersion, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		m := xcodeVersionRE.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		major, err1 := strconv.Atoi(m[1])
		minor, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			return ToolchainVersion{}, false
		}
		return ToolchainVersion{Major: major, Minor: minor}, true
	}
	return ToolchainVersion{}, false
}

// DetermineToolchainVersion probes `xcodebuild -version`. It never fails:
// on any problem it warns and returns LatestToolchainVersion.
func DetermineToolchainVersion(ctx context.Context, runner Runner, xcrun string, emit Emitter) ToolchainVersion {
	out := runner.Run(ctx, CmdSpec{Path: xcrun, Args: []string{"xcodebuild", "-version"}})
	if !out.Success() {
		EmitMaybe(emit, Warn("version", "Could not determine Xcode version, assuming latest: "+out.ErrorDetail()))
		return LatestToolchainVersion
	}
	v, ok := ParseToolchainVersion(out.Stdout)
	if !ok {
		EmitMaybe(emit, Warn("version", fmt.Sprintf("Could not parse Xcode version from %q, assuming latest", firstLine(out.Stdout))))
		return LatestToolchainVersion
	}
	EmitMaybe(emit, Log("version", "Detected Xcode "+v.String()))
	return v
}

func firstLine(b []byte) string {
	line, _, _ := bytes.Cut(bytes.TrimSpace(b), []byte("\n"))
	return string(line)
}
