package report

import (
	"io"
	"log/slog"
	"strings"
)

// Literal delimiters the audit agent wraps its structured report in.
const (
	StartMarker = "--- AUDIT REPORT START ---"
	EndMarker   = "--- AUDIT REPORT END ---"
)

// Source identifies which strategy produced an extraction.
type Source string

const (
	SourceDelimited Source = "delimited"
	SourceOpenEnded Source = "open_ended"
	SourceRaw       Source = "raw"
)

// Extraction is the result of running the pipeline over one transcript.
type Extraction struct {
	Report string
	Source Source
}

// FellBack reports whether the raw transcript was returned instead of a
// marker-delimited section.
func (e Extraction) FellBack() bool {
	return e.Source == SourceRaw
}

// Strategy attempts to pull a report out of a transcript. matched is false
// when the strategy does not apply to the input at all.
type Strategy interface {
	Name() Source
	Extract(transcript string) (text string, matched bool)
}

// Extractor runs strategies in order and applies the empty-body fallback.
type Extractor struct {
	logger     *slog.Logger
	strategies []Strategy
}

// NewExtractor returns an extractor with the standard strategy order:
// delimited, open-ended, raw. A nil logger discards warnings.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Extractor{
		logger: logger,
		strategies: []Strategy{
			delimitedStrategy{},
			openEndedStrategy{},
		},
	}
}

// Extract returns the structured report contained in transcript.
func (x *Extractor) Extract(transcript string) Extraction {
	if transcript == "" {
		return Extraction{Report: "", Source: SourceRaw}
	}

	for _, s := range x.strategies {
		text, matched := s.Extract(transcript)
		if !matched {
			continue
		}
		if strings.TrimSpace(text) == "" {
			x.logger.Warn("audit report between markers is empty; using raw transcript",
				"strategy", string(s.Name()))
			return Extraction{Report: transcript, Source: SourceRaw}
		}
		if s.Name() == SourceOpenEnded {
			x.logger.Warn("audit report end marker not found; using text after start marker",
				"marker", EndMarker)
		}
		return Extraction{Report: trimBlankLines(text), Source: s.Name()}
	}

	x.logger.Warn("audit report start marker not found; using raw transcript",
		"marker", StartMarker)
	return Extraction{Report: transcript, Source: SourceRaw}
}

// trimBlankLines drops whitespace-only lines at both ends of text. The first
// kept line retains its indentation.
func trimBlankLines(text string) string {
	for {
		line, rest, ok := strings.Cut(text, "\n")
		if !ok {
			return strings.TrimSpace(text)
		}
		if strings.TrimSpace(line) != "" {
			break
		}
		text = rest
	}
	return strings.TrimRight(text, " \t\r\n")
}

// Extract runs the standard pipeline with warnings discarded.
func Extract(transcript string) string {
	return NewExtractor(nil).Extract(transcript).Report
}

type delimitedStrategy struct{}

func (delimitedStrategy) Name() Source { return SourceDelimited }

func (delimitedStrategy) Extract(transcript string) (string, bool) {
	_, after, ok := strings.Cut(transcript, StartMarker)
	if !ok {
		return "", false
	}
	body, _, ok := strings.Cut(after, EndMarker)
	if !ok {
		return "", false
	}
	return body, true
}

type openEndedStrategy struct{}

func (openEndedStrategy) Name() Source { return SourceOpenEnded }

func (openEndedStrategy) Extract(transcript string) (string, bool) {
	_, after, ok := strings.Cut(transcript, StartMarker)
	if !ok {
		return "", false
	}
	// Only applies when the delimited strategy could not find an end marker.
	if strings.Contains(after, EndMarker) {
		return "", false
	}
	return after, true
}
