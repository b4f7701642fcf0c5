package engine

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumReader(t *testing.T) {
	data := []byte("hello world")

	cr := NewChecksumReader(bytes.NewReader(data))
	readData, err := io.ReadAll(cr)
	require.NoError(t, err)

	assert.Equal(t, data, readData)
	assert.NotZero(t, cr.Checksum())
	assert.Equal(t, int64(len(data)), cr.BytesRead())
}

func TestFileChecksumMatchesReader(t *testing.T) {
	data := []byte("test data for checksum consistency")
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cr := NewChecksumReader(bytes.NewReader(data))
	_, err := io.ReadAll(cr)
	require.NoError(t, err)

	got, err := fileChecksum(path, make([]byte, 7))
	require.NoError(t, err)
	assert.Equal(t, cr.Checksum(), got)

	require.NoError(t, os.WriteFile(path, []byte("different"), 0644))
	got, err = fileChecksum(path, make([]byte, 7))
	require.NoError(t, err)
	assert.NotEqual(t, cr.Checksum(), got)

	_, err = fileChecksum(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)
}
