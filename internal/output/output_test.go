package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_StatusLines(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing each kind of line
	w.Success("Index ready")
	w.Warningf("%d posts failed", 2)
	w.Error("engine down")
	w.Status("", "indented")

	// Then: each carries its marker and no color codes
	assert.Equal(t, "✓ Index ready\n! 2 posts failed\n✗ engine down\n  indented\n", buf.String())
}

func TestNew_BufferIsNotATerminal(t *testing.T) {
	w := New(&bytes.Buffer{})

	assert.False(t, w.useColor)
}

func TestWriter_PaintWhenColored(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &Writer{out: buf, useColor: true}

	w.Success("ok")

	assert.Contains(t, buf.String(), ansiGreen)
	assert.Contains(t, buf.String(), ansiReset)
}

func TestWriter_Hit(t *testing.T) {
	// Given: a long multi-line body
	buf := &bytes.Buffer{}
	w := New(buf)
	body := "first line\n\nsecond   line " + strings.Repeat("x", 100)

	// When: printing it as a hit
	w.Hit(1, 42, time.Time{}, body)

	// Then: it is one collapsed, truncated line under the header
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "1. #42")
	assert.True(t, strings.HasPrefix(lines[1], "     first line second line x"))
	assert.True(t, strings.HasSuffix(lines[1], "…"))
	assert.Equal(t, 72, len([]rune(strings.TrimSpace(lines[1]))))
}

func TestWriter_JSONAndKeyValue(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	require.NoError(t, w.JSON(map[string]int{"total": 3}))
	w.KeyValue("backend", "bleve")

	assert.Equal(t, "{\n  \"total\": 3\n}\n  backend:           bleve\n", buf.String())
}
