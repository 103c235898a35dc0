package main

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babblebase/filecount/internal/counter/memfile"
	apperrors "github.com/babblebase/filecount/pkg/errors"
)

const sampleTMX = `<?xml version="1.0" encoding="UTF-8"?>
<tmx version="1.4">
  <header srclang="en" datatype="plaintext"/>
  <body>
    <tu>
      <tuv xml:lang="en"><seg>Good morning.</seg></tuv>
      <tuv xml:lang="de"><seg>Guten Morgen.</seg></tuv>
    </tu>
    <tu>
      <tuv xml:lang="en"><seg>Thank you.</seg></tuv>
      <tuv xml:lang="de"><seg>Danke.</seg></tuv>
    </tu>
  </body>
</tmx>`

func buildSnapshot(t *testing.T) (dir, snapshot string) {
	t.Helper()
	dir = t.TempDir()
	tmx := writeFile(t, dir, "memory.tmx", sampleTMX)
	snapshot = filepath.Join(dir, "memory.fcm")
	_, _, err := run(t, "memory", "build", tmx, "-o", snapshot)
	require.NoError(t, err)
	return dir, snapshot
}

func TestMemoryBuild(t *testing.T) {
	_, snapshot := buildSnapshot(t)

	ok, err := memfile.IsSnapshot(snapshot)
	require.NoError(t, err)
	assert.True(t, ok)

	r, err := memfile.OpenReader(snapshot)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, "xxh64+trim", r.Header().Hasher)
}

func TestMemoryBuildMergesCorpora(t *testing.T) {
	dir, first := buildSnapshot(t)
	second := writeFile(t, dir, "more.tmx", `<tmx version="1.4"><header srclang="en"/><body>
<tu><tuv xml:lang="en"><seg>Thank you.</seg></tuv></tu>
<tu><tuv xml:lang="en"><seg>See you.</seg></tuv></tu>
</body></tmx>`)
	out := filepath.Join(dir, "merged.fcm")
	_, _, err := run(t, "memory", "build", first, second, "-o", out)
	require.NoError(t, err)

	r, err := memfile.OpenReader(out)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Len())
}

func TestMemoryBuildMissingCorpus(t *testing.T) {
	dir, first := buildSnapshot(t)
	_, _, err := run(t, "memory", "build", first, filepath.Join(dir, "absent.tmx"), "-o", filepath.Join(dir, "out.fcm"))
	assert.Error(t, err)
}

func TestMemoryBuildRequiresOutput(t *testing.T) {
	dir := t.TempDir()
	tmx := writeFile(t, dir, "memory.tmx", sampleTMX)
	_, _, err := run(t, "memory", "build", tmx)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestMemoryBuildMissingSourceLanguage(t *testing.T) {
	dir := t.TempDir()
	tmx := writeFile(t, dir, "memory.tmx", `<tmx><header/><body/></tmx>`)
	_, _, err := run(t, "memory", "build", tmx, "-o", filepath.Join(dir, "out.fcm"))
	require.ErrorIs(t, err, apperrors.ErrMissingCorpusMetadata)
	assert.Equal(t, 4, apperrors.ExitCode(err))
}

func TestMemoryStat(t *testing.T) {
	dir, snapshot := buildSnapshot(t)

	stdout, _, err := run(t, "memory", "stat", "--json", snapshot)
	require.NoError(t, err)
	var out memoryStatOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "snapshot", out.Kind)
	assert.Equal(t, 2, out.Entries)
	assert.Equal(t, "xxh64+trim", out.Hasher)
	assert.NotNil(t, out.CreatedAt)

	stdout, _, err = run(t, "memory", "stat", filepath.Join(dir, "memory.tmx"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "corpus, 2 entries")
}

func TestMemoryContains(t *testing.T) {
	dir, snapshot := buildSnapshot(t)

	tests := []struct {
		path string
		text string
		want string
	}{
		{snapshot, "Good morning.", "yes"},
		{snapshot, "  Good morning. ", "yes"},
		{snapshot, "Guten Morgen.", "no"},
		{filepath.Join(dir, "memory.tmx"), "Thank you.", "yes"},
		{filepath.Join(dir, "memory.tmx"), "Danke.", "no"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			stdout, _, err := run(t, "memory", "contains", tt.path, tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want+"\n", stdout)
		})
	}
}

func TestMemoryAddAndDelete(t *testing.T) {
	_, snapshot := buildSnapshot(t)

	stdout, _, err := run(t, "memory", "add", snapshot, "See you.", "Good morning.")
	require.NoError(t, err)
	assert.Contains(t, stdout, "3 entries")

	stdout, _, err = run(t, "memory", "contains", snapshot, "See you.")
	require.NoError(t, err)
	assert.Equal(t, "yes\n", stdout)

	stdout, _, err = run(t, "memory", "delete", "--json", snapshot, "Thank you.", "Never seen.")
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, 1.0, out["changed"])
	assert.Equal(t, 2.0, out["entries"])
}

func TestMemoryAddCreatesSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.fcm")

	_, _, err := run(t, "memory", "add", path, "Hello.")
	require.NoError(t, err)

	r, err := memfile.OpenReader(path)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())
}

func TestMemoryAddRefusesCorpus(t *testing.T) {
	tmx := writeFile(t, t.TempDir(), "memory.tmx", sampleTMX)
	_, _, err := run(t, "memory", "add", tmx, "Hello.")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
