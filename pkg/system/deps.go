// Package system discovers the external tools the pipeline drives.
package system

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// Tool names known to the dependency manager
const (
	ToolJava      = "java"
	ToolApktool   = "apktool"
	ToolZipalign  = "zipalign"
	ToolApksigner = "apksigner"
	ToolKeytool   = "keytool"
)

const versionProbeTimeout = 10 * time.Second

// DependencyStatus represents the status of a dependency
type DependencyStatus struct {
	Name        string    `json:"name"`
	Required    bool      `json:"required"`
	Available   bool      `json:"available"`
	Version     string    `json:"version"`
	Path        string    `json:"path"`
	UsedBy      []string  `json:"used_by"`
	LastChecked time.Time `json:"last_checked"`
	Error       string    `json:"error,omitempty"`
}

// DependencyManager manages system dependencies
type DependencyManager interface {
	CheckDependency(name string) DependencyStatus
	CheckForCommand(command string) []DependencyStatus
	CheckAll() map[string]DependencyStatus
	Locate(name string) (string, bool)
	GetInstallInstructions(name string) []string
}

// DefaultDependencyManager is the default implementation
type DefaultDependencyManager struct {
	cache    map[string]DependencyStatus
	cacheMu  sync.RWMutex
	cacheTTL time.Duration
}

// NewDependencyManager creates a new dependency manager
func NewDependencyManager() DependencyManager {
	return &DefaultDependencyManager{
		cache:    make(map[string]DependencyStatus),
		cacheTTL: 5 * time.Minute,
	}
}

// DependencyDefinition defines how to check for a dependency
type DependencyDefinition struct {
	Name        string
	Required    bool
	UsedBy      []string
	Description string
	Executables []string
	CommonPaths []string
	VersionArgs []string
}

var dependencies = map[string]DependencyDefinition{
	ToolJava: {
		Name:        ToolJava,
		Required:    true,
		UsedBy:      []string{"patch", "keystore"},
		Description: "Java runtime - runs apktool",
		Executables: executables("java"),
		CommonPaths: javaPaths(),
		VersionArgs: []string{"-version"},
	},
	ToolApktool: {
		Name:        ToolApktool,
		Required:    true,
		UsedBy:      []string{"patch"},
		Description: "apktool - decodes and rebuilds packages",
		Executables: append(executables("apktool"), "apktool.bat"),
		CommonPaths: []string{"/usr/local/bin/apktool", "/opt/homebrew/bin/apktool", "/usr/bin/apktool"},
		VersionArgs: []string{"--version"},
	},
	ToolZipalign: {
		Name:        ToolZipalign,
		Required:    true,
		UsedBy:      []string{"patch"},
		Description: "zipalign - aligns rebuilt packages",
		Executables: executables("zipalign"),
		CommonPaths: buildToolsPaths("zipalign"),
	},
	ToolApksigner: {
		Name:        ToolApksigner,
		Required:    true,
		UsedBy:      []string{"patch"},
		Description: "apksigner - signs and verifies packages",
		Executables: append(executables("apksigner"), "apksigner.bat"),
		CommonPaths: buildToolsPaths("apksigner"),
		VersionArgs: []string{"--version"},
	},
	ToolKeytool: {
		Name:        ToolKeytool,
		Required:    false,
		UsedBy:      []string{"keystore"},
		Description: "keytool - generates the signing keystore",
		Executables: executables("keytool"),
		CommonPaths: javaToolPaths("keytool"),
	},
}

// Names returns the known tool names in a stable order
func Names() []string {
	names := make([]string, 0, len(dependencies))
	for name := range dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the human description of a tool
func Describe(name string) string {
	return dependencies[name].Description
}

// CheckDependency checks the status of a specific dependency
func (dm *DefaultDependencyManager) CheckDependency(name string) DependencyStatus {
	dm.cacheMu.RLock()
	if cached, exists := dm.cache[name]; exists {
		if time.Since(cached.LastChecked) < dm.cacheTTL {
			dm.cacheMu.RUnlock()
			return cached
		}
	}
	dm.cacheMu.RUnlock()

	def, exists := dependencies[name]
	if !exists {
		return DependencyStatus{
			Name:        name,
			Available:   false,
			Error:       "Unknown dependency",
			LastChecked: time.Now(),
		}
	}

	status := dm.checkDependencyActual(def)

	dm.cacheMu.Lock()
	dm.cache[name] = status
	dm.cacheMu.Unlock()

	return status
}

// checkDependencyActual looks in PATH first, then in the usual SDK and JDK
// locations.
func (dm *DefaultDependencyManager) checkDependencyActual(def DependencyDefinition) DependencyStatus {
	status := DependencyStatus{
		Name:        def.Name,
		Required:    def.Required,
		UsedBy:      def.UsedBy,
		Available:   false,
		LastChecked: time.Now(),
	}

	found := func(path string) bool {
		version := dm.getToolVersion(path, def.VersionArgs)
		if version == "" {
			return false
		}
		status.Available = true
		status.Path = path
		status.Version = version
		return true
	}

	for _, executable := range def.Executables {
		if path, err := exec.LookPath(executable); err == nil && found(path) {
			return status
		}
	}

	for _, commonPath := range def.CommonPaths {
		if strings.Contains(commonPath, "*") {
			matches := dm.expandWildcardPath(commonPath)
			newestFirst(matches)
			for _, match := range matches {
				if found(match) {
					return status
				}
			}
			continue
		}
		if _, err := os.Stat(commonPath); err == nil && found(commonPath) {
			return status
		}
	}

	status.Error = fmt.Sprintf("%s not found in PATH or common locations", def.Name)
	return status
}

// getToolVersion returns the first non-empty output line of the version
// probe, "unknown" for tools without one, and "" when the probe fails.
func (dm *DefaultDependencyManager) getToolVersion(toolPath string, versionArgs []string) string {
	if len(versionArgs) == 0 {
		if info, err := os.Stat(toolPath); err != nil || info.IsDir() {
			return ""
		}
		return "unknown"
	}

	ctx, cancel := context.WithTimeout(context.Background(), versionProbeTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, toolPath, versionArgs...).CombinedOutput()
	if err != nil {
		return ""
	}

	for _, line := range strings.Split(string(output), "\n") {
		if version := strings.TrimSpace(line); version != "" {
			return version
		}
	}
	return "unknown"
}

// expandWildcardPath expands paths with wildcards
func (dm *DefaultDependencyManager) expandWildcardPath(pattern string) []string {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return []string{}
	}

	var validPaths []string
	for _, match := range matches {
		if _, err := os.Stat(match); err == nil {
			validPaths = append(validPaths, match)
		}
	}
	return validPaths
}

// newestFirst orders versioned paths such as build-tools/34.0.0/zipalign
// with the highest version first. Digit runs compare numerically.
func newestFirst(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		return compareNatural(paths[i], paths[j]) > 0
	})
}

func compareNatural(a, b string) int {
	for a != "" && b != "" {
		da, db := isDigit(a[0]), isDigit(b[0])
		if da && db {
			na, ra := leadingDigits(a)
			nb, rb := leadingDigits(b)
			na, nb = strings.TrimLeft(na, "0"), strings.TrimLeft(nb, "0")
			if len(na) != len(nb) {
				return len(na) - len(nb)
			}
			if c := strings.Compare(na, nb); c != 0 {
				return c
			}
			a, b = ra, rb
			continue
		}
		if a[0] != b[0] {
			return int(a[0]) - int(b[0])
		}
		a, b = a[1:], b[1:]
	}
	return len(a) - len(b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func leadingDigits(s string) (string, string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

// Locate returns the path of an available tool
func (dm *DefaultDependencyManager) Locate(name string) (string, bool) {
	status := dm.CheckDependency(name)
	return status.Path, status.Available
}

// CheckForCommand checks dependencies required for a specific command
func (dm *DefaultDependencyManager) CheckForCommand(command string) []DependencyStatus {
	commandDeps := map[string][]string{
		"patch":    {ToolJava, ToolApktool, ToolZipalign, ToolApksigner},
		"keystore": {ToolKeytool},
		"merge":    {},
		"smali":    {},
		"info":     {},
	}

	var statuses []DependencyStatus
	for _, dep := range commandDeps[command] {
		statuses = append(statuses, dm.CheckDependency(dep))
	}
	return statuses
}

// CheckAll checks all known dependencies
func (dm *DefaultDependencyManager) CheckAll() map[string]DependencyStatus {
	result := make(map[string]DependencyStatus)
	for name := range dependencies {
		result[name] = dm.CheckDependency(name)
	}
	return result
}

// GetInstallInstructions returns installation instructions for a dependency
func (dm *DefaultDependencyManager) GetInstallInstructions(name string) []string {
	switch name {
	case ToolJava, ToolKeytool:
		return getJDKInstallInstructions()
	case ToolApktool:
		return getApktoolInstallInstructions()
	case ToolZipalign, ToolApksigner:
		return getBuildToolsInstallInstructions()
	default:
		return []string{"Unknown dependency: " + name}
	}
}

func executables(name string) []string {
	if runtime.GOOS == "windows" {
		return []string{name + ".exe", name}
	}
	return []string{name}
}

// sdkRoots lists Android SDK locations, environment first
func sdkRoots() []string {
	var roots []string
	for _, env := range []string{"ANDROID_HOME", "ANDROID_SDK_ROOT"} {
		if v := os.Getenv(env); v != "" {
			roots = append(roots, v)
		}
	}

	switch runtime.GOOS {
	case "linux":
		roots = append(roots, "/opt/android-sdk", "/usr/lib/android-sdk")
		if home := os.Getenv("HOME"); home != "" {
			roots = append(roots, filepath.Join(home, "Android/Sdk"), filepath.Join(home, ".android-sdk"))
		}
	case "darwin":
		if home := os.Getenv("HOME"); home != "" {
			roots = append(roots, filepath.Join(home, "Library/Android/sdk"))
		}
	case "windows":
		roots = append(roots, "C:\\Android\\Sdk")
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			roots = append(roots, filepath.Join(localAppData, "Android\\Sdk"))
		}
	}
	return roots
}

func buildToolsPaths(toolName string) []string {
	var paths []string
	if runtime.GOOS == "windows" {
		for _, root := range sdkRoots() {
			paths = append(paths,
				filepath.Join(root, "build-tools", "*", toolName+".exe"),
				filepath.Join(root, "build-tools", "*", toolName+".bat"))
		}
		return paths
	}
	paths = append(paths, "/usr/bin/"+toolName, "/usr/local/bin/"+toolName)
	for _, root := range sdkRoots() {
		paths = append(paths, filepath.Join(root, "build-tools", "*", toolName))
	}
	return paths
}

func javaToolPaths(toolName string) []string {
	var paths []string
	exe := toolName
	if runtime.GOOS == "windows" {
		exe += ".exe"
	}
	if home := os.Getenv("JAVA_HOME"); home != "" {
		paths = append(paths, filepath.Join(home, "bin", exe))
	}

	switch runtime.GOOS {
	case "linux":
		paths = append(paths, "/usr/bin/"+toolName, "/usr/lib/jvm/*/bin/"+toolName)
	case "darwin":
		paths = append(paths,
			"/opt/homebrew/opt/openjdk/bin/"+toolName,
			"/Library/Java/JavaVirtualMachines/*/Contents/Home/bin/"+toolName)
	case "windows":
		paths = append(paths, "C:\\Program Files\\Java\\*\\bin\\"+exe)
	}
	return paths
}

func javaPaths() []string {
	return javaToolPaths("java")
}

func getJDKInstallInstructions() []string {
	switch runtime.GOOS {
	case "linux":
		return []string{
			"Ubuntu/Debian: sudo apt-get install openjdk-17-jdk-headless",
			"Fedora: sudo dnf install java-17-openjdk-devel",
		}
	case "darwin":
		return []string{
			"Homebrew: brew install openjdk@17",
		}
	case "windows":
		return []string{
			"Download a JDK from https://adoptium.net and add its bin directory to PATH",
		}
	default:
		return []string{"Install a JDK 11 or newer"}
	}
}

func getApktoolInstallInstructions() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"Homebrew: brew install apktool",
			"Manual: https://apktool.org/docs/install",
		}
	default:
		return []string{
			"Manual: https://apktool.org/docs/install",
			"Or download apktool.jar and set tools.apktool_jar in the config file",
		}
	}
}

func getBuildToolsInstallInstructions() []string {
	switch runtime.GOOS {
	case "linux":
		return []string{
			"Ubuntu/Debian: sudo apt-get install zipalign apksigner",
			"Manual: sdkmanager \"build-tools;34.0.0\" and add build-tools/<version> to PATH",
		}
	case "darwin":
		return []string{
			"Homebrew: brew install --cask android-commandlinetools",
			"Then: sdkmanager \"build-tools;34.0.0\"",
		}
	default:
		return []string{
			"Download Android SDK Build Tools from https://developer.android.com/studio#command-tools",
			"Add build-tools\\<version> to PATH",
		}
	}
}
