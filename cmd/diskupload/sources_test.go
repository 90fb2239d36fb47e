package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExpander() sourceExpander {
	return sourceExpander{logger: log.NewLogger(), pathModifier: pathutil.NewPathModifier()}
}

func touch(t *testing.T, paths ...string) {
	for _, p := range paths {
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte{1}, 0644))
	}
}

func Test_sourceExpander_expand(t *testing.T) {
	dir := t.TempDir()
	touch(t,
		filepath.Join(dir, "a.vhd"),
		filepath.Join(dir, "nested", "b.vhd.zst"),
		filepath.Join(dir, "notes.txt"),
	)

	images, err := newExpander().expand([]string{
		filepath.Join(dir, "**", "*.vhd*"),
		"s3://bucket/c.vhd",
	}, "")
	require.NoError(t, err)

	assert.Equal(t, []image{
		{Location: filepath.Join(dir, "a.vhd"), Blob: "a.vhd"},
		{Location: filepath.Join(dir, "nested", "b.vhd.zst"), Blob: "b.vhd"},
		{Location: "s3://bucket/c.vhd", Blob: "c.vhd"},
	}, images)
}

func Test_sourceExpander_expand_BlobName(t *testing.T) {
	images, err := newExpander().expand([]string{"https://example.com/disk.vhd.zst?sig=abc"}, "os-disk.vhd")
	require.NoError(t, err)
	assert.Equal(t, []image{{Location: "https://example.com/disk.vhd.zst?sig=abc", Blob: "os-disk.vhd"}}, images)
}

func Test_sourceExpander_expand_Errors(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.vhd"), filepath.Join(dir, "b.vhd"), filepath.Join(dir, "x", "a.vhd"))

	tests := []struct {
		name     string
		sources  []string
		blobName string
	}{
		{name: "no match", sources: []string{filepath.Join(dir, "*.img")}},
		{name: "blob name for many images", sources: []string{filepath.Join(dir, "*.vhd")}, blobName: "disk.vhd"},
		{name: "duplicate blob", sources: []string{filepath.Join(dir, "**", "a.vhd")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newExpander().expand(tt.sources, tt.blobName)
			assert.Error(t, err)
		})
	}
}

func Test_defaultBlobName(t *testing.T) {
	assert.Equal(t, "disk.vhd", defaultBlobName("/images/disk.vhd"))
	assert.Equal(t, "disk.vhd", defaultBlobName("/images/disk.vhd.zst"))
	assert.Equal(t, "disk.vhd", defaultBlobName("https://example.com/x/disk.vhd.zst?sig=abc"))
	assert.Equal(t, "disk.raw", defaultBlobName("s3://bucket/key/disk.raw"))
}
