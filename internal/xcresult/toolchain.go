package xcresult

import (
	"context"

	"github.com/xcbolt/xcreport/internal/core"
)

// Toolchain builds and runs the xcresulttool/xccov command lines for one
// probed Xcode version.
type Toolchain struct {
	Runner  core.Runner
	Xcrun   string
	Version core.ToolchainVersion
}

func (t Toolchain) run(ctx context.Context, spec core.CmdSpec) core.CmdOutput {
	return t.Runner.Run(ctx, spec)
}

func (t Toolchain) xcrun() string {
	if t.Xcrun == "" {
		return "xcrun"
	}
	return t.Xcrun
}

func (t Toolchain) resultTool(args ...string) core.CmdSpec {
	full := append([]string{"xcresulttool"}, args...)
	full = append(full, core.LegacyFlags(t.Version)...)
	return core.CmdSpec{Path: t.xcrun(), Args: full}
}

func (t Toolchain) xccov(args ...string) core.CmdSpec {
	return core.CmdSpec{Path: t.xcrun(), Args: append([]string{"xccov"}, args...)}
}

// getObjectCmd dumps the bundle's root ActionsInvocationRecord as JSON.
func (t Toolchain) getObjectCmd(bundle string) core.CmdSpec {
	return t.resultTool("get", "--path", bundle, "--format", "json")
}

func (t Toolchain) exportDirectoryCmd(bundle, id, dest string) core.CmdSpec {
	return t.resultTool("export", "--type", "directory", "--path", bundle, "--id", id, "--output-path", dest)
}

func (t Toolchain) viewArchiveCmd(archive string) core.CmdSpec {
	return t.xccov("view", "--archive", archive)
}

func (t Toolchain) fileListCmd(archive string) core.CmdSpec {
	return t.xccov("view", "--archive", archive, "--file-list")
}

func (t Toolchain) viewFileCmd(archive, file string) core.CmdSpec {
	return t.xccov("view", "--archive", archive, "--file", file)
}
