// Package report routes the files handed to the uploader by their report
// format. Files tagged XCODE go through the xcresult conversion pipeline,
// every other format passes through untouched.
package report

import (
	"context"
	"sort"
	"strings"

	"github.com/xcbolt/xcreport/internal/xcresult"
)

// Converter is the per-format conversion step. *xcresult.Converter implements it.
type Converter interface {
	Convert(ctx context.Context, inputs []string) ([]xcresult.ConvertedReport, error)
}

// Reports maps an upload format to its report files, sorted and unique.
type Reports map[string][]string

func (r Reports) add(format, file string) {
	r[format] = append(r[format], file)
}

func (r Reports) normalize() {
	for format, files := range r {
		sort.Strings(files)
		uniq := files[:0]
		for _, f := range files {
			if len(uniq) > 0 && f == uniq[len(uniq)-1] {
				continue
			}
			uniq = append(uniq, f)
		}
		r[format] = uniq
	}
}

// Formats returns the formats in r, sorted.
func (r Reports) Formats() []string {
	out := make([]string, 0, len(r))
	for f := range r {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// IsXcodeFormat reports whether format selects the Xcode conversion pipeline.
func IsXcodeFormat(format string) bool {
	return strings.EqualFold(strings.TrimSpace(format), xcresult.ReportFormat)
}

// Convert resolves inputs (format -> files) into upload-ready reports.
func Convert(ctx context.Context, conv Converter, inputs map[string][]string) (Reports, error) {
	out := Reports{}
	var xcode []string
	for format, files := range inputs {
		if IsXcodeFormat(format) {
			xcode = append(xcode, files...)
			continue
		}
		for _, f := range files {
			out.add(format, f)
		}
	}
	if len(xcode) > 0 {
		sort.Strings(xcode)
		converted, err := conv.Convert(ctx, xcode)
		if err != nil {
			return nil, err
		}
		for _, r := range converted {
			out.add(r.Format, r.File)
		}
	}
	out.normalize()
	return out, nil
}
