package models

import "sort"

// BundleManifestName is the metadata document stored at the root of an XAPK
const BundleManifestName = "manifest.json"

// BundleMetadata represents the manifest.json in XAPK files
type BundleMetadata struct {
	PackageName      string     `json:"package_name"`
	Name             string     `json:"name"`
	VersionCode      FlexString `json:"version_code"`
	VersionName      string     `json:"version_name"`
	MinSDKVersion    FlexString `json:"min_sdk_version"`
	TargetSDKVersion FlexString `json:"target_sdk_version"`
	SplitAPKs        []SplitAPK `json:"split_apks,omitempty"`
}

// SplitAPK is one entry of the split_apks list
type SplitAPK struct {
	File string `json:"file"`
	ID   string `json:"id"`
}

// Package is one decompilable unit of a bundle
type Package struct {
	Name string `json:"name"` // file name without extension, e.g. "config.en"
	Path string `json:"path"` // extracted .apk path
	Base bool   `json:"base"`
}

// Bundle is an extracted XAPK
type Bundle struct {
	Path     string          `json:"path"`
	Dir      string          `json:"dir"`
	Metadata *BundleMetadata `json:"metadata"`
	Packages []*Package      `json:"packages"`
}

// Base returns the base package, or nil when the bundle has none
func (b *Bundle) Base() *Package {
	for _, p := range b.Packages {
		if p.Base {
			return p
		}
	}
	return nil
}

// Splits returns the split packages sorted by name
func (b *Bundle) Splits() []*Package {
	var splits []*Package
	for _, p := range b.Packages {
		if !p.Base {
			splits = append(splits, p)
		}
	}
	sort.Slice(splits, func(i, j int) bool { return splits[i].Name < splits[j].Name })
	return splits
}
