package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/huanfeng/xapk-patcher/internal/errors"
)

const splitManifest = `<?xml version="1.0" encoding="utf-8" standalone="no"?><manifest xmlns:android="http://schemas.android.com/apk/res/android" android:compileSdkVersion="34" android:isSplitRequired="true" android:requiredSplitTypes="base__abi,base__density" android:splitTypes="" package="com.example.app" xmlns:dist="http://schemas.android.com/apk/distribution">
    <dist:module dist:instant="false"/>
    <application android:label="@string/app_name" android:isSplitRequired="true">
        <meta-data android:name="com.android.vending.splits.required" android:value="true"/>
        <activity android:name=".Main" xmlns:tools="http://schemas.android.com/tools" tools:node="merge"/>
    </application>
</manifest>
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "AndroidManifest.xml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestScanNamespaces(t *testing.T) {
	ns, err := ScanNamespaces(writeManifest(t, splitManifest))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"android": "http://schemas.android.com/apk/res/android",
		"dist":    "http://schemas.android.com/apk/distribution",
		"tools":   "http://schemas.android.com/tools",
	}, ns)
}

func TestScanNamespacesDefaultAndFirstWins(t *testing.T) {
	doc := `<root xmlns="urn:default" xmlns:a="urn:first"><child xmlns:a="urn:second"/></root>`
	ns, err := ScanNamespaces(writeManifest(t, doc))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"": "urn:default", "a": "urn:first"}, ns)
}

func TestScanNamespacesMissing(t *testing.T) {
	_, err := ScanNamespaces(filepath.Join(t.TempDir(), "AndroidManifest.xml"))
	require.Error(t, err)
	assert.True(t, perrors.IsType(err, perrors.ErrorTypeStructuralAssumption))
}

func TestSanitizeFile(t *testing.T) {
	path := writeManifest(t, splitManifest)
	before, err := ScanNamespaces(path)
	require.NoError(t, err)

	res, err := SanitizeFile(path)
	require.NoError(t, err)

	assert.Equal(t, []Removed{
		{Element: "manifest", Attribute: "android:isSplitRequired", Value: "true"},
		{Element: "manifest", Attribute: "android:requiredSplitTypes", Value: "base__abi,base__density"},
		{Element: "manifest", Attribute: "android:splitTypes", Value: ""},
		{Element: "application", Attribute: "android:isSplitRequired", Value: "true"},
	}, res.Removed)
	assert.Equal(t, []string{"tools"}, res.Redeclared)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="utf-8"`))
	for _, m := range SplitMarkers {
		assert.NotContains(t, out, m)
	}
	assert.Contains(t, out, `android:name="com.android.vending.splits.required"`)
	assert.Contains(t, out, `package="com.example.app"`)
	assert.Contains(t, out, `tools:node="merge"`)

	after, err := ScanNamespaces(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// every prefix used in the output resolves from the root
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromFile(path))
	for _, prefix := range []string{"android", "dist", "tools"} {
		assert.NotNil(t, doc.Root().SelectAttr("xmlns:"+prefix), prefix)
	}
}

func TestSanitizeIsIdempotent(t *testing.T) {
	path := writeManifest(t, splitManifest)
	_, err := SanitizeFile(path)
	require.NoError(t, err)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	res, err := SanitizeFile(path)
	require.NoError(t, err)
	assert.Empty(t, res.Removed)
	assert.Empty(t, res.Redeclared)

	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestSanitizeRedeclaresDroppedBindings(t *testing.T) {
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(`<manifest package="x"><application android:isSplitRequired="true" android:label="app"/></manifest>`))

	removed := Sanitize(doc, map[string]string{"android": "http://schemas.android.com/apk/res/android"})
	require.Len(t, removed, 1)
	assert.Equal(t, "application", removed[0].Element)

	attr := doc.Root().SelectAttr("xmlns:android")
	require.NotNil(t, attr)
	assert.Equal(t, "http://schemas.android.com/apk/res/android", attr.Value)
}

func TestSanitizeVisitsDeepElementsOnce(t *testing.T) {
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(`<a splitTypes="1"><b splitTypes="2"><c splitTypes="3"><d splitTypes="4"/></c></b><e splitTypes="5"/></a>`))

	removed := Sanitize(doc, nil)
	var order []string
	for _, r := range removed {
		order = append(order, r.Element+"="+r.Value)
	}
	assert.Equal(t, []string{"a=1", "b=2", "e=5", "c=3", "d=4"}, order)
}

func TestSanitizeKeepsNamespaceDeclarations(t *testing.T) {
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(`<manifest xmlns:splitTypes="urn:odd" splitTypes:x="1"/>`))

	removed := Sanitize(doc, map[string]string{"splitTypes": "urn:odd"})
	assert.Empty(t, removed)
	assert.NotNil(t, doc.Root().SelectAttr("xmlns:splitTypes"))
}

func TestSanitizeFilePreservesEncoding(t *testing.T) {
	content := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n<manifest xmlns:android=\"http://schemas.android.com/apk/res/android\" android:isSplitRequired=\"true\" android:label=\"Caf\xe9\"/>\n"
	path := writeManifest(t, content)

	res, err := SanitizeFile(path)
	require.NoError(t, err)
	assert.Len(t, res.Removed, 1)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `encoding="ISO-8859-1"`)
	assert.Contains(t, string(data), "Caf\xe9")
	assert.NotContains(t, string(data), "isSplitRequired")
}
