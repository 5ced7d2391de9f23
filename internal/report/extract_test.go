package report

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newCapturingExtractor returns an extractor whose warnings land in buf.
func newCapturingExtractor(t *testing.T) (*Extractor, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewExtractor(logger), buf
}

func TestExtract_Delimited(t *testing.T) {
	x, logs := newCapturingExtractor(t)

	got := x.Extract("noise\n--- AUDIT REPORT START ---\nBODY\n--- AUDIT REPORT END ---\nnoise2")

	assert.Equal(t, "BODY", got.Report)
	assert.Equal(t, SourceDelimited, got.Source)
	assert.False(t, got.FellBack())
	assert.Empty(t, logs.String(), "clean extraction should not warn")
}

func TestExtract_DelimitedKeepsIndentation(t *testing.T) {
	input := "--- AUDIT REPORT START ---\n\n    indented first line\n  - item\n\n--- AUDIT REPORT END ---"

	got := NewExtractor(nil).Extract(input)

	assert.Equal(t, "    indented first line\n  - item", got.Report)
	assert.Equal(t, SourceDelimited, got.Source)
}

func TestExtract_SingleLineMarkers(t *testing.T) {
	got := Extract("--- AUDIT REPORT START --- BODY --- AUDIT REPORT END ---")

	assert.Equal(t, "BODY", got)
}

func TestExtract_NoStartMarker(t *testing.T) {
	x, logs := newCapturingExtractor(t)

	got := x.Extract("plain text")

	assert.Equal(t, "plain text", got.Report)
	assert.Equal(t, SourceRaw, got.Source)
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "start marker not found")
}

func TestExtract_EmptyBodyFallsBackToRaw(t *testing.T) {
	x, logs := newCapturingExtractor(t)
	input := "--- AUDIT REPORT START ---\n\n--- AUDIT REPORT END ---\n"

	got := x.Extract(input)

	assert.Equal(t, input, got.Report, "full input must be returned unchanged")
	assert.Equal(t, SourceRaw, got.Source)
	assert.Contains(t, logs.String(), "empty")
}

func TestExtract_MissingEndMarker(t *testing.T) {
	x, logs := newCapturingExtractor(t)

	got := x.Extract("preamble\n--- AUDIT REPORT START ---\n## Summary\nall good\n")

	assert.Equal(t, "## Summary\nall good", got.Report)
	assert.Equal(t, SourceOpenEnded, got.Source)
	assert.Contains(t, logs.String(), "end marker not found")
}

func TestExtract_OpenEndedWhitespaceOnly(t *testing.T) {
	x, _ := newCapturingExtractor(t)
	input := "log line\n--- AUDIT REPORT START ---\n   \n"

	got := x.Extract(input)

	assert.Equal(t, input, got.Report)
	assert.Equal(t, SourceRaw, got.Source)
}

func TestExtract_OnlyFirstPairHonored(t *testing.T) {
	input := "--- AUDIT REPORT START ---\nfirst\n--- AUDIT REPORT END ---\n" +
		"between\n--- AUDIT REPORT START ---\nsecond\n--- AUDIT REPORT END ---\n"

	got := Extract(input)

	assert.Equal(t, "first", got)
	assert.NotContains(t, got, "second")
	assert.NotContains(t, got, "between")
}

func TestExtract_EndMarkerBeforeStart(t *testing.T) {
	input := "--- AUDIT REPORT END ---\nnoise\n--- AUDIT REPORT START ---\nreport body"

	got := NewExtractor(nil).Extract(input)

	assert.Equal(t, "report body", got.Report)
	assert.Equal(t, SourceOpenEnded, got.Source)
}

func TestExtract_EmptyInput(t *testing.T) {
	x, logs := newCapturingExtractor(t)

	got := x.Extract("")

	assert.Equal(t, "", got.Report)
	assert.Empty(t, logs.String())
}

func TestExtract_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"plain text",
		"a\n--- AUDIT REPORT START ---\nb\n--- AUDIT REPORT END ---\nc",
		"--- AUDIT REPORT START ---\nno end",
		"--- AUDIT REPORT START ---\n\n--- AUDIT REPORT END ---\n",
	}

	for _, in := range inputs {
		first := NewExtractor(nil).Extract(in)
		second := NewExtractor(nil).Extract(in)
		assert.Equal(t, first, second, "input %q", in)
	}
}

func TestExtract_Golden(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("testdata", "transcripts", "opencode_run.txt"))
	require.NoError(t, err)

	got := NewExtractor(nil).Extract(string(raw))
	require.Equal(t, SourceDelimited, got.Source)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "opencode_run", []byte(got.Report))
}
