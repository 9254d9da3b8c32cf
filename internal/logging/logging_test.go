package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWritesAllSinks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	var out bytes.Buffer

	logger, last := New(Options{Stdout: &out, File: path})
	logger.Printf("first line")
	logger.Printf("second line")

	require.Contains(t, out.String(), "first line")
	require.True(t, strings.HasSuffix(last.String(), "second line"))
	require.True(t, strings.HasPrefix(last.String(), prefix))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[1], "second line")
}

func TestAppendFileSurvivesRemoval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	a := &AppendFile{Path: path}

	_, err := a.Write([]byte("one\n"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))
	_, err = a.Write([]byte("two\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "two\n", string(data))
}

func TestLastLineEmpty(t *testing.T) {
	var l *LastLine
	require.Equal(t, "", l.String())
	require.Equal(t, "", (&LastLine{}).String())
}
