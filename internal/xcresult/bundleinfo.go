package xcresult

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"howett.net/plist"
)

// BundleInfo is the Info.plist at the root of an .xcresult bundle.
type BundleInfo struct {
	DateCreated time.Time           `plist:"dateCreated"`
	RootID      BundleRootID        `plist:"rootId"`
	Storage     BundleStorage       `plist:"storage"`
	Version     BundleFormatVersion `plist:"version"`
}

type BundleRootID struct {
	Hash string `plist:"hash"`
}

type BundleStorage struct {
	Backend     string `plist:"backend"`
	Compression string `plist:"compression"`
}

type BundleFormatVersion struct {
	Major int `plist:"major"`
	Minor int `plist:"minor"`
}

func (v BundleFormatVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

func ReadBundleInfo(bundle string) (BundleInfo, error) {
	b, err := os.ReadFile(filepath.Join(bundle, "Info.plist"))
	if err != nil {
		return BundleInfo{}, fmt.Errorf("read Info.plist: %w", err)
	}
	var info BundleInfo
	if _, err := plist.Unmarshal(b, &info); err != nil {
		return BundleInfo{}, fmt.Errorf("parse Info.plist: %w", err)
	}
	if info.RootID.Hash == "" {
		return info, fmt.Errorf("parse Info.plist: missing rootId")
	}
	return info, nil
}
