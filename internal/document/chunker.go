package document

import (
	"regexp"
	"strings"
)

// Default chunking parameters. Tokens are approximated by
// whitespace-delimited words.
const (
	DefaultMaxTokens     = 512
	DefaultOverlapTokens = 100
	DefaultMinChunkChars = 50
)

// Chunk is one embeddable slice of a file. Ordinal is the position of
// the chunk within the file; SourcePath is filled in by the caller.
type Chunk struct {
	Text       string
	SourcePath string
	Ordinal    int
}

// Chunker splits loaded text into overlapping token windows, honoring
// structural boundaries for markdown headings and notebook cells.
type Chunker struct {
	maxTokens     int
	overlapTokens int
	minChars      int
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithMaxTokens sets the window size in tokens.
func WithMaxTokens(n int) ChunkerOption {
	return func(c *Chunker) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithOverlapTokens sets how many tokens consecutive windows share.
func WithOverlapTokens(n int) ChunkerOption {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlapTokens = n
		}
	}
}

// WithMinChunkChars sets the minimum trimmed length a chunk must have
// to be kept. Tiny fragments make poor search results.
func WithMinChunkChars(n int) ChunkerOption {
	return func(c *Chunker) {
		if n >= 0 {
			c.minChars = n
		}
	}
}

// NewChunker creates a Chunker with the given options.
func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{
		maxTokens:     DefaultMaxTokens,
		overlapTokens: DefaultOverlapTokens,
		minChars:      DefaultMinChunkChars,
	}
	for _, opt := range opts {
		opt(c)
	}
	// Overlap must leave room to advance.
	if c.overlapTokens >= c.maxTokens {
		c.overlapTokens = c.maxTokens / 4
	}
	return c
}

var (
	headingRe  = regexp.MustCompile(`^#{1,6}\s`)
	cellHeadRe = regexp.MustCompile(`^# Cell \d+ \((?:code|markdown)\):`)
)

// Chunk splits raw into chunks for the given kind. Empty or
// whitespace-only input yields no chunks.
func (c *Chunker) Chunk(raw string, kind Kind) []Chunk {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	var sections []string
	switch kind {
	case KindMarkdown:
		sections = splitSections(raw, headingRe)
	case KindNotebook:
		sections = splitSections(raw, cellHeadRe)
	default:
		sections = []string{raw}
	}

	var chunks []Chunk
	for _, section := range sections {
		for _, text := range c.window(section) {
			chunks = append(chunks, Chunk{Text: text, Ordinal: len(chunks)})
		}
	}
	return chunks
}

// splitSections breaks raw at lines matching boundary, so a chunk
// boundary prefers a structural break over an arbitrary token cut.
func splitSections(raw string, boundary *regexp.Regexp) []string {
	lines := strings.Split(raw, "\n")

	var sections []string
	var current []string
	flush := func() {
		if len(current) == 0 {
			return
		}
		section := strings.Join(current, "\n")
		if strings.TrimSpace(section) != "" {
			sections = append(sections, section)
		}
		current = current[:0]
	}

	for _, line := range lines {
		if boundary.MatchString(line) {
			flush()
		}
		current = append(current, line)
	}
	flush()
	return sections
}

// window slices a section into overlapping token windows and applies
// the minimum-length filter.
func (c *Chunker) window(section string) []string {
	words := strings.Fields(section)
	if len(words) == 0 {
		return nil
	}

	step := c.maxTokens - c.overlapTokens
	var out []string
	for start := 0; start < len(words); start += step {
		end := min(start+c.maxTokens, len(words))
		text := strings.TrimSpace(strings.Join(words[start:end], " "))
		if len(text) >= c.minChars {
			out = append(out, text)
		}
		if end == len(words) {
			break
		}
	}
	return out
}
