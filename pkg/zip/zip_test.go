package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveAssets(t *testing.T) {
	archive, err := ArchiveAssets([]Asset{
		{Filename: "00-scene.png", Data: []byte("first")},
		{Filename: "01-empty.png"},
		{Filename: "02-scene.png", Data: []byte("third")},
	})
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "00-scene.png", zr.File[0].Name)
	assert.Equal(t, "02-scene.png", zr.File[1].Name)

	rc, err := zr.File[1].Open()
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "third", string(body))
}
