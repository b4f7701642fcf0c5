package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/skycp/location"
)

func TestJoinKey(t *testing.T) {
	tests := []struct {
		elem   []string
		expect string
	}{
		{[]string{"", "a.txt"}, "a.txt"},
		{[]string{"prefix", "a.txt"}, "prefix/a.txt"},
		{[]string{"prefix/", "b/c"}, "prefix/b/c"},
		{[]string{"/abs", "x"}, "abs/x"},
		{[]string{"deep/prefix", "some/path.txt"}, "deep/prefix/some/path.txt"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expect, JoinKey(tt.elem...), "JoinKey(%q)", tt.elem)
	}
}

func TestContentType(t *testing.T) {
	dir := t.TempDir()
	text := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(text, []byte("plain words"), 0644))

	assert.Contains(t, contentType(text), "text/plain")
	assert.Equal(t, defaultContentType, contentType(filepath.Join(dir, "missing")))
}

func TestNewOpener(t *testing.T) {
	open := NewOpener(Options{
		GCS: GCSOptions{AccessKey: "key", SecretKey: "secret"},
	})
	ctx := context.Background()

	gcs, err := open(ctx, location.Remote{Kind: location.SchemeGS, Bucket: "bkt"})
	require.NoError(t, err)
	assert.IsType(t, &GCSStore{}, gcs)

	az, err := open(ctx, location.Remote{Kind: location.SchemeAzure, Bucket: "acct", Container: "ctr"})
	require.NoError(t, err)
	assert.IsType(t, &AzureStore{}, az)
	assert.Equal(t, "ctr", az.(*AzureStore).container)

	_, err = open(ctx, location.Remote{Kind: "ftp", Bucket: "x"})
	assert.Error(t, err)
}

func TestNewAzureStore_ClampsNegativeConcurrency(t *testing.T) {
	az, err := NewAzureStore("acct", "ctr", AzureOptions{BlockConcurrency: -5})
	require.NoError(t, err)
	assert.Zero(t, az.concurrency)
}
