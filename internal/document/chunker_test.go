package document

import (
	"fmt"
	"strings"
	"testing"
)

func TestChunker_EmptyInput(t *testing.T) {
	c := NewChunker()
	if got := c.Chunk("", KindMarkdown); got != nil {
		t.Errorf("Chunk(empty) = %v, want nil", got)
	}
	if got := c.Chunk("   \n\t\n", KindSource); got != nil {
		t.Errorf("Chunk(whitespace) = %v, want nil", got)
	}
}

func TestChunker_SingleWindow(t *testing.T) {
	c := NewChunker(WithMinChunkChars(1))
	chunks := c.Chunk("alpha beta gamma delta", KindSource)

	if len(chunks) != 1 {
		t.Fatalf("len(chunks) = %d, want 1", len(chunks))
	}
	if chunks[0].Text != "alpha beta gamma delta" {
		t.Errorf("Text = %q", chunks[0].Text)
	}
	if chunks[0].Ordinal != 0 {
		t.Errorf("Ordinal = %d, want 0", chunks[0].Ordinal)
	}
}

func TestChunker_OverlappingWindows(t *testing.T) {
	words := make([]string, 10)
	for i := range words {
		words[i] = fmt.Sprintf("word%02d", i)
	}
	raw := strings.Join(words, " ")

	c := NewChunker(WithMaxTokens(4), WithOverlapTokens(2), WithMinChunkChars(1))
	chunks := c.Chunk(raw, KindSource)

	want := []string{
		"word00 word01 word02 word03",
		"word02 word03 word04 word05",
		"word04 word05 word06 word07",
		"word06 word07 word08 word09",
	}
	if len(chunks) != len(want) {
		t.Fatalf("len(chunks) = %d, want %d", len(chunks), len(want))
	}
	for i, w := range want {
		if chunks[i].Text != w {
			t.Errorf("chunks[%d].Text = %q, want %q", i, chunks[i].Text, w)
		}
		if chunks[i].Ordinal != i {
			t.Errorf("chunks[%d].Ordinal = %d, want %d", i, chunks[i].Ordinal, i)
		}
	}
}

func TestChunker_MarkdownHeadingBoundaries(t *testing.T) {
	raw := "intro paragraph with enough words here\n" +
		"# Section One\nfirst section body text goes here\n" +
		"## Subsection\nsecond section body text goes here\n"

	c := NewChunker(WithMaxTokens(100), WithOverlapTokens(10), WithMinChunkChars(1))
	chunks := c.Chunk(raw, KindMarkdown)

	if len(chunks) != 3 {
		t.Fatalf("len(chunks) = %d, want 3 (one per section):\n%#v", len(chunks), chunks)
	}
	if !strings.HasPrefix(chunks[0].Text, "intro paragraph") {
		t.Errorf("chunks[0] = %q", chunks[0].Text)
	}
	if !strings.HasPrefix(chunks[1].Text, "# Section One") {
		t.Errorf("chunks[1] = %q", chunks[1].Text)
	}
	if !strings.HasPrefix(chunks[2].Text, "## Subsection") {
		t.Errorf("chunks[2] = %q", chunks[2].Text)
	}
}

func TestChunker_NotebookCellBoundaries(t *testing.T) {
	raw := "# Cell 1 (markdown):\nstudy notes for the experiment\n\n" +
		"# Cell 2 (code):\nresult = run_backtest(config)\n\n" +
		"# Output (stream):\nfinal sharpe ratio was 1.42\n"

	c := NewChunker(WithMaxTokens(100), WithOverlapTokens(10), WithMinChunkChars(1))
	chunks := c.Chunk(raw, KindNotebook)

	if len(chunks) != 2 {
		t.Fatalf("len(chunks) = %d, want 2 (one per cell):\n%#v", len(chunks), chunks)
	}
	if !strings.HasPrefix(chunks[0].Text, "# Cell 1 (markdown):") {
		t.Errorf("chunks[0] = %q", chunks[0].Text)
	}
	// Outputs stay attached to the cell that produced them.
	if !strings.Contains(chunks[1].Text, "final sharpe ratio") {
		t.Errorf("chunks[1] = %q", chunks[1].Text)
	}
}

func TestChunker_MinChunkCharsFilter(t *testing.T) {
	raw := "tiny\n# Heading\n" + strings.Repeat("substantial content ", 5)

	c := NewChunker(WithMaxTokens(100), WithOverlapTokens(0), WithMinChunkChars(50))
	chunks := c.Chunk(raw, KindMarkdown)

	if len(chunks) != 1 {
		t.Fatalf("len(chunks) = %d, want 1 after short-chunk filter", len(chunks))
	}
	if strings.Contains(chunks[0].Text, "tiny") {
		t.Errorf("short fragment survived: %q", chunks[0].Text)
	}
}

func TestChunker_SourceIgnoresHeadingLines(t *testing.T) {
	raw := "# not a markdown heading in code\npackage main\nfunc main() {}\n"

	c := NewChunker(WithMaxTokens(100), WithOverlapTokens(0), WithMinChunkChars(1))
	chunks := c.Chunk(raw, KindSource)

	if len(chunks) != 1 {
		t.Fatalf("len(chunks) = %d, want 1 (no structural splits for source)", len(chunks))
	}
}

func TestNewChunker_OverlapClamped(t *testing.T) {
	c := NewChunker(WithMaxTokens(8), WithOverlapTokens(20))
	if c.overlapTokens >= c.maxTokens {
		t.Errorf("overlap %d not clamped below window %d", c.overlapTokens, c.maxTokens)
	}
}
