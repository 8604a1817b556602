package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexStringAcceptsNumbersAndStrings(t *testing.T) {
	var meta BundleMetadata
	data := `{"package_name":"com.example","version_code":1042,"min_sdk_version":"21","target_sdk_version":null}`
	require.NoError(t, json.Unmarshal([]byte(data), &meta))

	assert.Equal(t, "1042", meta.VersionCode.String())
	assert.Equal(t, int64(1042), meta.VersionCode.Int())
	assert.Equal(t, int64(21), meta.MinSDKVersion.Int())
	assert.Equal(t, "", meta.TargetSDKVersion.String())
	assert.Equal(t, int64(0), FlexString("beta").Int())
}

func TestFlexStringRejectsObjects(t *testing.T) {
	var f FlexString
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &f))
}

func TestBundleBaseAndSplits(t *testing.T) {
	b := &Bundle{Packages: []*Package{
		{Name: "config.xxhdpi"},
		{Name: "com.example", Base: true},
		{Name: "config.arm64_v8a"},
	}}

	require.NotNil(t, b.Base())
	assert.Equal(t, "com.example", b.Base().Name)

	splits := b.Splits()
	require.Len(t, splits, 2)
	assert.Equal(t, "config.arm64_v8a", splits[0].Name)
	assert.Equal(t, "config.xxhdpi", splits[1].Name)

	assert.Nil(t, (&Bundle{}).Base())
}
