package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSource(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "queries.go")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCheckFlagsMissingMarker(t *testing.T) {
	path := writeSource(t, t.TempDir(), "package q\n\nconst QBad = `select 1`\n\nconst Label = \"plain text\"\n")

	a := newAuditor()
	require.NoError(t, a.check(path))
	require.Len(t, a.findings, 1)
	assert.Equal(t, "QBad", a.findings[0].constant)
	assert.Equal(t, 3, a.findings[0].line)
}

func TestCheckFlagsReusedMarker(t *testing.T) {
	path := writeSource(t, t.TempDir(), "package q\n\n"+
		"const (\n"+
		"\tQOne = `--sql 2a742a9e-820a-479c-b4d1-991228902b23\nselect 1`\n"+
		"\tQTwo = \"--sql 2a742a9e-820a-479c-b4d1-991228902b23\\nselect 2\"\n"+
		")\n")

	a := newAuditor()
	require.NoError(t, a.check(path))
	require.Len(t, a.findings, 1)
	assert.Equal(t, "QTwo", a.findings[0].constant)
	assert.Contains(t, a.findings[0].problem, "QOne")
}

func TestSourceFilesSkipsTestsAndHiddenDirs(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "package q\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "queries_test.go"), []byte("package q\n"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".cache"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".cache", "x.go"), []byte("package q\n"), 0o644))

	files, err := sourceFiles([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "queries.go")}, files)
}

func TestInlineQueriesAreMarked(t *testing.T) {
	files, err := sourceFiles([]string{filepath.Join("..", "..", "sqlinline")})
	require.NoError(t, err)
	require.NotEmpty(t, files)

	a := newAuditor()
	for _, f := range files {
		require.NoError(t, a.check(f))
	}
	assert.Empty(t, a.findings)
}
