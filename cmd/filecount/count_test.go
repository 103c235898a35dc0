package main

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/babblebase/filecount/pkg/errors"
)

func decodeCount(t *testing.T, stdout string) countOutput {
	t.Helper()
	var out countOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out), stdout)
	return out
}

func TestCountJSON(t *testing.T) {
	doc := writeFile(t, t.TempDir(), "doc.txt", "Hello world. Hello world. Bye.")

	stdout, _, err := run(t, "count", "--json", doc)
	require.NoError(t, err)

	out := decodeCount(t, stdout)
	require.Len(t, out.Documents, 1)
	rep := out.Documents[0].Report
	require.NotNil(t, rep)
	assert.Equal(t, doc, out.Documents[0].Path)
	assert.Equal(t, 3, rep.Analysis.Total.Segments)
	assert.Equal(t, 5, rep.Analysis.Total.Words)
	assert.Equal(t, 1, rep.Analysis.Repetitions.Segments)
	assert.Zero(t, rep.Analysis.Matches.Segments)
	assert.Nil(t, out.Summary)
	assert.Nil(t, out.Combined)
}

func TestCountText(t *testing.T) {
	doc := writeFile(t, t.TempDir(), "doc.txt", "Hello world. Hello world.")

	stdout, _, err := run(t, "count", doc)
	require.NoError(t, err)
	assert.Contains(t, stdout, "segments")
	assert.Contains(t, stdout, doc)
	assert.Regexp(t, `total\s+2\s+4\s+`, stdout)
	assert.Regexp(t, `repetitions\s+1\s+2\s+`, stdout)
	assert.Regexp(t, `matches\s+0\s+0\s+0`, stdout)
}

func TestCountCombinedSeesRepeatsAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "One. Two.")
	writeFile(t, dir, "b.txt", "Two. Three.")
	writeFile(t, dir, ".hidden/c.txt", "One. Two. Three.")

	stdout, _, err := run(t, "count", "--json", dir)
	require.NoError(t, err)
	separate := decodeCount(t, stdout)
	require.Len(t, separate.Documents, 2)
	require.NotNil(t, separate.Summary)
	assert.Equal(t, 4, separate.Summary.Total.Segments)
	assert.Zero(t, separate.Summary.Repetitions.Segments)

	stdout, _, err = run(t, "count", "--json", "--combined", dir)
	require.NoError(t, err)
	combined := decodeCount(t, stdout)
	require.NotNil(t, combined.Combined)
	assert.Equal(t, 4, combined.Combined.Analysis.Total.Segments)
	assert.Equal(t, 1, combined.Combined.Analysis.Repetitions.Segments)
	assert.Equal(t, []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.txt")}, combined.Combined.Documents)
}

func TestCountWithMemory(t *testing.T) {
	dir := t.TempDir()
	tmx := writeFile(t, dir, "memory.tmx", sampleTMX)
	doc := writeFile(t, dir, "doc.txt", "Good morning. How are you?")

	stdout, _, err := run(t, "count", "--json", "--memory", tmx, doc)
	require.NoError(t, err)
	rep := decodeCount(t, stdout).Documents[0].Report
	assert.Equal(t, 1, rep.Analysis.Matches.Segments)
	assert.NotEmpty(t, rep.MemoryFingerprint)
}

func TestCountReportsFailedDocuments(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.txt", "Fine.")
	bad := writeFile(t, dir, "bad.txt", "\xff\xfe")

	stdout, stderr, err := run(t, "count", "--json", good, bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidEncoding)
	assert.Equal(t, 3, apperrors.ExitCode(err))
	assert.Contains(t, stderr, bad)

	out := decodeCount(t, stdout)
	require.Len(t, out.Documents, 2)
	assert.NotNil(t, out.Documents[0].Report)
	assert.Contains(t, out.Documents[1].Error, "UTF-8")
}

func TestCountRequiresPaths(t *testing.T) {
	_, _, err := run(t, "count")
	assert.Error(t, err)

	_, _, err = run(t, "count", t.TempDir())
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, 2, apperrors.ExitCode(err))
}
