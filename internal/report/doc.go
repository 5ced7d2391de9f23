// Package report isolates the structured audit report from a noisy analyzer
// transcript and pulls the human-facing summary out of it.
//
// EXTRACTION PIPELINE:
//
// The extractor runs an ordered list of strategies against the transcript and
// returns the first one that matches:
//
//  1. Delimited: text strictly between the first START marker and the first
//     END marker that follows it. Later marker pairs are ignored.
//  2. OpenEnded: START marker present, END marker missing; everything after
//     the START marker.
//  3. Raw: the entire transcript, unchanged.
//
// A strategy that matches but yields only whitespace is discarded and the
// transcript is returned raw. Agents sometimes emit the markers around an
// empty body; the raw text is more useful to a reviewer than nothing.
//
// Extraction is a pure function of the transcript. The only side effect is a
// warning on the injected logger whenever a fallback is taken.
package report
