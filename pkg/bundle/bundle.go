// Package bundle unpacks XAPK/APKM bundles and partitions their packages
// into the base package and its splits.
package bundle

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	perrors "github.com/huanfeng/xapk-patcher/internal/errors"
	"github.com/huanfeng/xapk-patcher/pkg/models"
)

const (
	apkExtension     = ".apk"
	fallbackBaseName = "base"
)

// IsBundle checks if the file is an XAPK or APKM file
func IsBundle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".xapk" || ext == ".apkm"
}

func checkBundlePath(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return perrors.NewFileNotFoundError(path)
	}
	if !IsBundle(path) {
		return perrors.NewFormatError(path, ".xapk")
	}
	return nil
}

// Extract unpacks bundlePath into destDir, which is discarded first, and
// returns the bundle with its base package identified.
func Extract(bundlePath, destDir string) (*models.Bundle, error) {
	if err := checkBundlePath(bundlePath); err != nil {
		return nil, err
	}

	reader, err := zip.OpenReader(bundlePath)
	if err != nil {
		return nil, perrors.WrapError(err, perrors.ErrorTypeFormat, "BUNDLE_OPEN",
			"failed to open bundle (not a valid zip)").WithContext("path", bundlePath)
	}
	defer reader.Close()

	if err := os.RemoveAll(destDir); err != nil {
		return nil, perrors.NewFileSystemError("BUNDLE_CLEAN", "failed to remove "+destDir, err)
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, perrors.NewFileSystemError("BUNDLE_MKDIR", "failed to create "+destDir, err)
	}

	for _, file := range reader.File {
		if err := extractFile(file, destDir); err != nil {
			return nil, err
		}
	}

	meta, err := loadMetadata(filepath.Join(destDir, models.BundleManifestName))
	if err != nil {
		return nil, err
	}

	packages, err := listPackages(destDir, meta.PackageName)
	if err != nil {
		return nil, err
	}

	return &models.Bundle{
		Path:     bundlePath,
		Dir:      destDir,
		Metadata: meta,
		Packages: packages,
	}, nil
}

// extractFile writes one zip entry below destDir. Entries that would land
// outside destDir are rejected.
func extractFile(file *zip.File, destDir string) error {
	destPath := filepath.Join(destDir, file.Name)
	rel, err := filepath.Rel(destDir, destPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return perrors.NewError(perrors.ErrorTypeFormat, "BUNDLE_ENTRY_ESCAPES",
			fmt.Sprintf("bundle entry %q escapes the extraction directory", file.Name))
	}

	if file.FileInfo().IsDir() {
		if err := os.MkdirAll(destPath, 0755); err != nil {
			return perrors.NewFileSystemError("BUNDLE_MKDIR", "failed to create "+destPath, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return perrors.NewFileSystemError("BUNDLE_MKDIR", "failed to create "+filepath.Dir(destPath), err)
	}

	rc, err := file.Open()
	if err != nil {
		return perrors.WrapError(err, perrors.ErrorTypeFormat, "BUNDLE_ENTRY", "failed to read "+file.Name)
	}
	defer rc.Close()

	outFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return perrors.NewFileSystemError("BUNDLE_WRITE", "failed to create "+destPath, err)
	}
	defer outFile.Close()

	if _, err := io.Copy(outFile, rc); err != nil {
		return perrors.NewFileSystemError("BUNDLE_WRITE", "failed to extract "+file.Name, err)
	}
	return nil
}

func loadMetadata(path string) (*models.BundleMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, perrors.NewStructuralError("BUNDLE_MANIFEST_MISSING", path)
		}
		return nil, perrors.NewFileSystemError("BUNDLE_MANIFEST_READ", "failed to read "+path, err)
	}
	return decodeMetadata(data, path)
}

func decodeMetadata(data []byte, path string) (*models.BundleMetadata, error) {
	var meta models.BundleMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, perrors.WrapError(err, perrors.ErrorTypeFormat, "BUNDLE_MANIFEST_PARSE",
			"failed to parse "+path)
	}
	if meta.PackageName == "" {
		return nil, perrors.NewStructuralError("BUNDLE_PACKAGE_NAME_MISSING", path+"#package_name")
	}
	return &meta, nil
}

// listPackages returns the top-level packages of an extracted bundle sorted
// by name, with the base package marked.
func listPackages(dir, packageName string) ([]*models.Package, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, perrors.NewFileSystemError("BUNDLE_LIST", "failed to list "+dir, err)
	}

	var packages []*models.Package
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), apkExtension) {
			continue
		}
		packages = append(packages, &models.Package{
			Name: strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
			Path: filepath.Join(dir, e.Name()),
		})
	}
	sort.Slice(packages, func(i, j int) bool { return packages[i].Name < packages[j].Name })

	base := findBase(packages, packageName)
	if base == nil {
		return nil, perrors.NewStructuralError("BUNDLE_BASE_MISSING", filepath.Join(dir, packageName+apkExtension)).
			WithContext("package_name", packageName)
	}
	base.Base = true
	return packages, nil
}

func findBase(packages []*models.Package, packageName string) *models.Package {
	var fallback *models.Package
	for _, p := range packages {
		switch p.Name {
		case packageName:
			return p
		case fallbackBaseName:
			fallback = p
		}
	}
	return fallback
}

// ReadMetadata reads manifest.json straight from the bundle without
// extracting it.
func ReadMetadata(bundlePath string) (*models.BundleMetadata, error) {
	if err := checkBundlePath(bundlePath); err != nil {
		return nil, err
	}

	reader, err := zip.OpenReader(bundlePath)
	if err != nil {
		return nil, perrors.WrapError(err, perrors.ErrorTypeFormat, "BUNDLE_OPEN",
			"failed to open bundle (not a valid zip)").WithContext("path", bundlePath)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if file.Name != models.BundleManifestName {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, perrors.WrapError(err, perrors.ErrorTypeFormat, "BUNDLE_ENTRY", "failed to read "+file.Name)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, perrors.WrapError(err, perrors.ErrorTypeFormat, "BUNDLE_ENTRY", "failed to read "+file.Name)
		}
		return decodeMetadata(data, bundlePath+"!/"+file.Name)
	}
	return nil, perrors.NewStructuralError("BUNDLE_MANIFEST_MISSING", bundlePath+"!/"+models.BundleManifestName)
}
