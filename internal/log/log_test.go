package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, level Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Setup(&buf, FormatJSON)
	SetLevel(level)
	t.Cleanup(func() {
		Setup(os.Stderr, FormatConsole)
		SetLevel(LevelInfo)
	})
	return &buf
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, LevelInfo)

	Debug("hidden")
	Info("shown", "resource", "room-1")
	Warn("careful", "dropped", 2)

	got := lines(t, buf)
	require.Len(t, got, 2)
	assert.Equal(t, "shown", got[0]["message"])
	assert.Equal(t, "room-1", got[0]["resource"])
	assert.Equal(t, "warn", got[1]["level"])
	assert.EqualValues(t, 2, got[1]["dropped"])
}

func TestError_IncludesErr(t *testing.T) {
	buf := capture(t, LevelDebug)

	Error("fetch failed", errors.New("boom"), "url", "https://example.test/a.ics", "took", 3*time.Second)

	got := lines(t, buf)
	require.Len(t, got, 1)
	assert.Equal(t, "error", got[0]["level"])
	assert.Equal(t, "boom", got[0]["error"])
	assert.Equal(t, "https://example.test/a.ics", got[0]["url"])
	assert.Contains(t, got[0], "took")
}

func TestKVs_SkipMalformedPairs(t *testing.T) {
	buf := capture(t, LevelDebug)

	Info("odd", 42, "ignored-value", "key", "value", "dangling")

	got := lines(t, buf)
	require.Len(t, got, 1)
	assert.Equal(t, "value", got[0]["key"])
	assert.NotContains(t, got[0], "dangling")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" Warning "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}
