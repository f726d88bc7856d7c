package infra

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMarker(t *testing.T) {
	marker, body, err := extractMarker("\n--sql 2a742a9e-820a-479c-b4d1-991228902b23\nselect 1;\n")
	require.NoError(t, err)
	assert.Equal(t, "2a742a9e-820a-479c-b4d1-991228902b23", marker)
	assert.Equal(t, "select 1;", body)
}

func TestExtractMarkerRejectsUnmarked(t *testing.T) {
	for _, q := range []string{"", "select 1", "--sql not-a-uuid\nselect 1"} {
		_, _, err := extractMarker(q)
		assert.ErrorIs(t, err, errMissingMarker, q)
	}
}

func TestIsNoRows(t *testing.T) {
	assert.True(t, IsNoRows(pgx.ErrNoRows))
	assert.True(t, IsNoRows(fmt.Errorf("get job: %w", pgx.ErrNoRows)))
	assert.False(t, IsNoRows(errors.New("boom")))
}
