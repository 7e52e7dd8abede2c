package xcresult

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xcbolt/xcreport/internal/core"
)

// compactArchiveName is "<bundle>.<index>[.<test plan>].xccovarchive".
func compactArchiveName(bundle string, index int, testPlan string) string {
	name := fmt.Sprintf("%s.%d", strings.TrimSuffix(filepath.Base(bundle), BundleExt), index)
	if testPlan != "" {
		name += "." + strings.NewReplacer("/", "_", string(filepath.Separator), "_").Replace(testPlan)
	}
	return name + CompactArchiveExt
}

// MaterializeCoverageArchives exports one compact coverage archive per action
// that references one, in action order. Actions without coverage are skipped.
func MaterializeCoverageArchives(ctx context.Context, tc Toolchain, bundle string, rec ActionsInvocationRecord, workDir string, emit core.Emitter) ([]string, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, &ConversionError{Message: "cannot create working directory " + workDir, Err: err}
	}
	archives := []string{}
	for i, action := range rec.Actions.Items {
		id, ok := action.CoverageArchiveID()
		if !ok {
			continue
		}
		dest := filepath.Join(workDir, compactArchiveName(bundle, i, action.TestPlanName.V))
		core.EmitMaybe(emit, core.Log("convert", "Exporting coverage archive "+filepath.Base(dest)))

		out := tc.run(ctx, tc.exportDirectoryCmd(bundle, id, dest))
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !out.Success() {
			return nil, toolError(fmt.Sprintf("cannot export coverage archive %s from %s", id, bundle), out)
		}
		if !IsCompactArchive(dest) {
			return nil, &ConversionError{Message: fmt.Sprintf("xcresulttool export did not create %s", dest)}
		}
		archives = append(archives, dest)
	}
	return archives, nil
}
