package chunker

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

const (
	// DefaultChunkSize is the target chunk length in bytes. Small enough to
	// stay well inside embedding model context limits.
	DefaultChunkSize = 500
	// DefaultOverlap is the number of bytes repeated between adjacent chunks
	// for context continuity.
	DefaultOverlap = 100
)

// Chunk represents one span of a content's text.
type Chunk struct {
	Index int    // Position within the content (starts at 0)
	Start int    // Offset of the span in the original text
	End   int    // Offset one past the end of the span
	Text  string // Trimmed span text
}

// Splitter splits raw content into bounded, slightly overlapping chunks.
// Markdown headings are preferred split points, then paragraph breaks, then
// sentence endings, so chunks tend to follow the document's own structure.
type Splitter struct {
	chunkSize int
	overlap   int
	parser    goldmark.Markdown
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithChunkSize overrides the target chunk size in bytes.
func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithOverlap overrides the overlap between adjacent chunks in bytes.
func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

// NewSplitter creates a new Splitter.
func NewSplitter(opts ...Option) *Splitter {
	s := &Splitter{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultOverlap,
		parser: goldmark.New(
			goldmark.WithExtensions(extension.Table),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.overlap >= s.chunkSize {
		s.overlap = s.chunkSize / 4
	}
	return s
}

// Split splits content into chunks of bounded length with slight overlap.
// Returns an empty slice for blank input.
func (s *Splitter) Split(content string) []Chunk {
	if strings.TrimSpace(content) == "" {
		return []Chunk{}
	}

	if len(content) <= s.chunkSize {
		return []Chunk{{Index: 0, Start: 0, End: len(content), Text: strings.TrimSpace(content)}}
	}

	headings := s.headingOffsets([]byte(content))

	var chunks []Chunk
	start := 0
	index := 0

	for start < len(content) {
		end := start + s.chunkSize
		if end >= len(content) {
			end = len(content)
		} else {
			end = s.findSplitPoint(content, start, end, headings)
		}

		chunkText := strings.TrimSpace(content[start:end])
		if chunkText != "" {
			chunks = append(chunks, Chunk{
				Index: index,
				Start: start,
				End:   end,
				Text:  chunkText,
			})
			index++
		}

		if end >= len(content) {
			break
		}

		// Step back for overlap, but always make forward progress.
		next := end - s.overlap
		if next <= start {
			next = end
		}
		for next < len(content) && !utf8.RuneStart(content[next]) {
			next++
		}
		start = next
	}

	return chunks
}

// findSplitPoint picks the best split offset in (start, limit]. Preference
// order: markdown heading, paragraph break, sentence ending, newline. A
// split point in the first half of the window is ignored so chunks do not
// degenerate. Falls back to a hard split at a rune boundary.
func (s *Splitter) findSplitPoint(content string, start, limit int, headings []int) int {
	minSplit := start + s.chunkSize/2

	// Latest heading inside the acceptable window.
	idx := sort.SearchInts(headings, limit+1) - 1
	if idx >= 0 && headings[idx] > minSplit && headings[idx] <= limit {
		return headings[idx]
	}

	window := content[start:limit]
	half := s.chunkSize / 2

	if p := strings.LastIndex(window, "\n\n"); p > half {
		return start + p + 2
	}
	for _, boundary := range []string{". ", "! ", "? "} {
		if p := strings.LastIndex(window, boundary); p > half {
			return start + p + len(boundary)
		}
	}
	if p := strings.LastIndex(window, "\n"); p > half {
		return start + p + 1
	}

	// Hard split, backed off to a rune boundary.
	for limit > start && !utf8.RuneStart(content[limit]) {
		limit--
	}
	return limit
}

// headingOffsets parses the content as markdown and returns the byte
// offsets where headings begin, sorted ascending. Plain text simply yields
// no headings.
func (s *Splitter) headingOffsets(source []byte) []int {
	reader := text.NewReader(source)
	doc := s.parser.Parser().Parse(reader)

	var offsets []int
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		lines := heading.Lines()
		if lines.Len() == 0 {
			return ast.WalkContinue, nil
		}
		seg := lines.At(0)
		// The segment starts at the heading text; the marker (#) sits just
		// before it on the same line.
		offset := seg.Start
		for offset > 0 && source[offset-1] != '\n' {
			offset--
		}
		offsets = append(offsets, offset)
		return ast.WalkContinue, nil
	})

	sort.Ints(offsets)
	return offsets
}
