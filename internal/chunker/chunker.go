// Package chunker splits raw source text into bounded-size, paragraph-aligned
// segments for embedding and retrieval.
//
// The algorithm is a fixed-size paragraph-packing heuristic: paragraphs are
// greedily accumulated until adding the next one would exceed the size limit,
// then the buffer is emitted. An optional character overlap seeds each new
// buffer with the tail of the previous chunk so adjacent chunks share context
// across the boundary.
//
// There is no semantic boundary detection. The Splitter interface isolates
// the heuristic so a smarter implementation can be substituted without
// touching ingestion or retrieval code.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Defaults for Options.
const (
	DefaultMaxChunkSize = 1500
	DefaultOverlap      = 200
)

// paragraphSep matches any run of two or more newlines.
var paragraphSep = regexp.MustCompile(`\n{2,}`)

// Options configures text splitting.
type Options struct {
	// MaxChunkSize is the target maximum chunk length in characters.
	// A single paragraph longer than this is emitted whole; the bound is
	// best-effort, not guaranteed.
	MaxChunkSize int

	// Overlap is the number of trailing characters of an emitted chunk
	// copied into the start of the next one. Zero disables overlap.
	Overlap int
}

// DefaultOptions returns the standard ingestion options. Callers that want
// overlap disabled set Overlap to zero explicitly.
func DefaultOptions() Options {
	return Options{MaxChunkSize: DefaultMaxChunkSize, Overlap: DefaultOverlap}
}

// withDefaults fills unset fields. A zero Overlap is a valid explicit choice
// and is left alone.
func (o Options) withDefaults() Options {
	if o.MaxChunkSize <= 0 {
		o.MaxChunkSize = DefaultMaxChunkSize
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	return o
}

// Splitter turns source text into retrieval-sized segments.
type Splitter interface {
	Split(text string, opts Options) []string
}

// Paragraph is the paragraph-packing Splitter.
type Paragraph struct{}

// Split divides text into chunks of at most opts.MaxChunkSize characters,
// aligned to paragraph boundaries where possible.
//
// Paragraphs are separated by blank lines; whitespace-only paragraphs are
// discarded. When appending the next paragraph (plus the joining blank line)
// would push the buffer past the limit, the buffer is emitted and, if overlap
// is enabled, the new buffer starts with the last Overlap characters of the
// emitted chunk followed by the triggering paragraph. The overlap slice is
// aligned to a rune boundary but not to paragraphs.
//
// If the input yields no chunks at all, the original text is returned as a
// single chunk.
func (Paragraph) Split(text string, opts Options) []string {
	opts = opts.withDefaults()

	var paragraphs []string
	for _, p := range paragraphSep.Split(text, -1) {
		if strings.TrimSpace(p) != "" {
			paragraphs = append(paragraphs, p)
		}
	}

	var chunks []string
	var current string

	for _, paragraph := range paragraphs {
		if current != "" && len(current)+len(paragraph)+2 > opts.MaxChunkSize {
			chunks = append(chunks, strings.TrimSpace(current))
			if opts.Overlap > 0 {
				current = tail(current, opts.Overlap) + "\n\n" + paragraph
			} else {
				current = paragraph
			}
			continue
		}
		if current == "" {
			current = paragraph
		} else {
			current = current + "\n\n" + paragraph
		}
	}

	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}

	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}

// tail returns a suffix of s close to n bytes long, extended left to the
// nearest rune boundary so the overlap never starts mid-character.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[i:]
}
