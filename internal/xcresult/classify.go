package xcresult

import (
	"path/filepath"
	"strings"

	"github.com/xcbolt/xcreport/internal/util"
)

const (
	// BundleExt names a full Xcode result bundle directory.
	BundleExt = ".xcresult"
	// CompactArchiveExt names a coverage-only xccov archive directory.
	CompactArchiveExt = ".xccovarchive"
	// FlatReportExt is appended to the archive name for the flat text report.
	FlatReportExt = ".xccov"
)

type compression int

const (
	compressionNone compression = iota
	compressionGzip
	compressionXz
)

// Longest suffixes first so ".tar.gz" wins over ".gz" style matches.
var archiveSuffixes = []struct {
	suffix string
	kind   compression
}{
	{".tar.gz", compressionGzip},
	{".tar.xz", compressionXz},
	{".tgz", compressionGzip},
	{".txz", compressionXz},
	{".tar", compressionNone},
}

func archiveSuffix(name string) (string, compression, bool) {
	lower := strings.ToLower(name)
	for _, s := range archiveSuffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return name[len(name)-len(s.suffix):], s.kind, true
		}
	}
	return "", compressionNone, false
}

// IsCompressedArchive reports whether path is a (possibly compressed) tar file.
func IsCompressedArchive(path string) bool {
	if _, _, ok := archiveSuffix(filepath.Base(path)); !ok {
		return false
	}
	return util.Exists(path) && !util.IsDir(path)
}

// IsFullBundle reports whether path is an .xcresult directory.
func IsFullBundle(path string) bool {
	return strings.HasSuffix(filepath.Base(path), BundleExt) && util.IsDir(path)
}

// IsCompactArchive reports whether path is an .xccovarchive directory.
func IsCompactArchive(path string) bool {
	return strings.HasSuffix(filepath.Base(path), CompactArchiveExt) && util.IsDir(path)
}

// trimArchiveSuffix strips the tar suffix: "a.xcresult.tar.gz" -> "a.xcresult".
func trimArchiveSuffix(name string) string {
	suffix, _, ok := archiveSuffix(name)
	if !ok {
		return name
	}
	return strings.TrimSuffix(name, suffix)
}

// reportPath is where the flat report for a compact archive goes.
func reportPath(outputDir, archive string) string {
	return filepath.Join(outputDir, filepath.Base(archive)+FlatReportExt)
}
