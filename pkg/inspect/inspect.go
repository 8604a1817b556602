// Package inspect reads package metadata without modifying anything.
package inspect

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shogo82148/androidbinary/apk"

	perrors "github.com/huanfeng/xapk-patcher/internal/errors"
	"github.com/huanfeng/xapk-patcher/pkg/bundle"
)

// Package kinds
const (
	TypeAPK  = "APK"
	TypeXAPK = "XAPK"
)

var densityQualifiers = map[string]bool{
	"ldpi": true, "mdpi": true, "tvdpi": true, "hdpi": true, "xhdpi": true,
	"xxhdpi": true, "xxxhdpi": true, "nodpi": true, "anydpi": true,
}

var knownABIs = map[string]string{
	"armeabi":     "armeabi",
	"armeabi_v7a": "armeabi-v7a",
	"arm64_v8a":   "arm64-v8a",
	"x86":         "x86",
	"x86_64":      "x86_64",
	"mips":        "mips",
	"mips64":      "mips64",
}

// Info is the metadata of one package or bundle
type Info struct {
	Type          string   `json:"type"`
	PackageName   string   `json:"package_name"`
	AppName       string   `json:"app_name"`
	VersionName   string   `json:"version_name"`
	VersionCode   string   `json:"version_code"`
	MinSDK        string   `json:"min_sdk_version"`
	TargetSDK     string   `json:"target_sdk_version"`
	Architectures []string `json:"architectures"`
	Densities     []string `json:"densities"`
	Splits        []string `json:"splits,omitempty"`
}

// Inspect reads metadata from an .apk or an .xapk/.apkm file
func Inspect(path string) (*Info, error) {
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return nil, perrors.NewFileNotFoundError(path)
	}

	switch {
	case bundle.IsBundle(path):
		return inspectBundle(path)
	case strings.EqualFold(filepath.Ext(path), ".apk"):
		return inspectAPK(path)
	default:
		return nil, perrors.NewFormatError(path, ".apk or .xapk")
	}
}

func inspectAPK(path string) (*Info, error) {
	pkg, err := apk.OpenFile(path)
	if err != nil {
		return nil, perrors.WrapError(err, perrors.ErrorTypeFormat, "APK_PARSE", "failed to parse "+path)
	}
	defer pkg.Close()

	manifest := pkg.Manifest()
	info := &Info{
		Type:        TypeAPK,
		PackageName: pkg.PackageName(),
		VersionName: manifest.VersionName.MustString(),
	}
	if code, err := manifest.VersionCode.Int32(); err == nil {
		info.VersionCode = fmt.Sprint(code)
	}
	if v, err := manifest.SDK.Min.Int32(); err == nil {
		info.MinSDK = fmt.Sprint(v)
	}
	if v, err := manifest.SDK.Target.Int32(); err == nil {
		info.TargetSDK = fmt.Sprint(v)
	}
	if label, err := pkg.Label(nil); err == nil && label != "" {
		info.AppName = label
	} else {
		info.AppName = info.PackageName
	}

	names, err := entryNames(path)
	if err != nil {
		return nil, err
	}
	info.Architectures, info.Densities = scanEntries(names)
	return info, nil
}

func inspectBundle(path string) (*Info, error) {
	meta, err := bundle.ReadMetadata(path)
	if err != nil {
		return nil, err
	}

	info := &Info{
		Type:        TypeXAPK,
		PackageName: meta.PackageName,
		AppName:     meta.Name,
		VersionName: meta.VersionName,
		VersionCode: meta.VersionCode.String(),
		MinSDK:      meta.MinSDKVersion.String(),
		TargetSDK:   meta.TargetSDKVersion.String(),
	}

	abis := map[string]bool{}
	densities := map[string]bool{}
	for _, s := range meta.SplitAPKs {
		info.Splits = append(info.Splits, s.ID)
		qualifier := strings.TrimPrefix(s.ID, "config.")
		if qualifier == s.ID {
			continue
		}
		if abi, ok := knownABIs[qualifier]; ok {
			abis[abi] = true
		}
		if densityQualifiers[qualifier] {
			densities[qualifier] = true
		}
	}
	info.Architectures = sortedSet(abis)
	info.Densities = sortedSet(densities)
	return info, nil
}

func entryNames(path string) ([]string, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, perrors.WrapError(err, perrors.ErrorTypeFormat, "APK_OPEN", "failed to open "+path)
	}
	defer reader.Close()

	names := make([]string, 0, len(reader.File))
	for _, f := range reader.File {
		names = append(names, f.Name)
	}
	return names, nil
}

// scanEntries derives native ABIs from lib/<abi>/ and densities from the
// qualifiers of res/ directories.
func scanEntries(names []string) (abis, densities []string) {
	abiSet := map[string]bool{}
	densitySet := map[string]bool{}
	for _, name := range names {
		parts := strings.Split(name, "/")
		if len(parts) < 3 {
			continue
		}
		switch parts[0] {
		case "lib":
			abiSet[parts[1]] = true
		case "res":
			for _, q := range strings.Split(parts[1], "-")[1:] {
				if densityQualifiers[q] {
					densitySet[q] = true
				}
			}
		}
	}
	return sortedSet(abiSet), sortedSet(densitySet)
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// GitHubOutput renders the metadata as key=value lines for $GITHUB_OUTPUT
func (i *Info) GitHubOutput() string {
	var b strings.Builder
	lines := [][2]string{
		{"apk_version", i.VersionName},
		{"apk_package_name", i.PackageName},
		{"apk_version_code", i.VersionCode},
		{"apk_min_sdk_version", i.MinSDK},
		{"apk_target_sdk_version", i.TargetSDK},
		{"apk_app_name", i.AppName},
		{"apk_architectures", strings.Join(i.Architectures, ",")},
		{"apk_densities", strings.Join(i.Densities, ",")},
		{"apk_type", i.Type},
	}
	for _, l := range lines {
		fmt.Fprintf(&b, "%s=%s\n", l[0], l[1])
	}
	return b.String()
}

// AppendGitHubOutput appends GitHubOutput to the file at path
func (i *Info) AppendGitHubOutput(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return perrors.NewFileSystemError("GITHUB_OUTPUT_OPEN", "failed to open "+path, err)
	}
	defer f.Close()
	if _, err := io.WriteString(f, i.GitHubOutput()); err != nil {
		return perrors.NewFileSystemError("GITHUB_OUTPUT_WRITE", "failed to write "+path, err)
	}
	return nil
}
