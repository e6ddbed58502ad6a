package metadata

import (
	"slices"
	"testing"
)

func TestExtract_InlineHashtags(t *testing.T) {
	raw := `# Test Document

This is a test with #backtest and #strategy tags.

We also have #mean-reversion and #risk-management.

But not color codes like <font color='#f86d2d'>red</font>.
`

	doc := Extract(raw)

	want := []string{"#backtest", "#mean-reversion", "#risk-management", "#strategy"}
	for _, tag := range want {
		if !slices.Contains(doc.Tags, tag) {
			t.Errorf("Extract() tags = %v, missing %q", doc.Tags, tag)
		}
	}
	if slices.Contains(doc.Tags, "#f86d2d") {
		t.Errorf("Extract() tags = %v, color code should be excluded", doc.Tags)
	}
}

func TestExtract_HexColorCodes(t *testing.T) {
	raw := `Palette notes: #ff0000 and #fff plus #ff00d0aa and #abcd.

Real tags: #test #example
`

	doc := Extract(raw)

	if got, want := doc.Tags, []string{"#example", "#test"}; !slices.Equal(got, want) {
		t.Errorf("Extract() tags = %v, want %v", got, want)
	}
}

func TestExtract_CodeBlocksExcluded(t *testing.T) {
	raw := "Normal text with #real-tag\n\n```c\n#include <stdio.h>\n// #fake-tag in a comment\n```\n\nAnother #second-tag here, and inline `#inline-fake` too.\n"

	doc := Extract(raw)

	if !slices.Contains(doc.Tags, "#real-tag") || !slices.Contains(doc.Tags, "#second-tag") {
		t.Fatalf("Extract() tags = %v, want body tags present", doc.Tags)
	}
	for _, banned := range []string{"#include", "#fake-tag", "#inline-fake"} {
		if slices.Contains(doc.Tags, banned) {
			t.Errorf("Extract() tags = %v, %q should be excluded", doc.Tags, banned)
		}
	}
}

func TestExtract_TrailingPunctuation(t *testing.T) {
	doc := Extract("A note about #idea. And #plan, obviously.")

	if got, want := doc.Tags, []string{"#idea", "#plan"}; !slices.Equal(got, want) {
		t.Errorf("Extract() tags = %v, want %v", got, want)
	}
}

func TestExtract_HeadingMarkersExcluded(t *testing.T) {
	doc := Extract("Jump to #h1 or #h10, but keep #heading-style.")

	if got, want := doc.Tags, []string{"#heading-style"}; !slices.Equal(got, want) {
		t.Errorf("Extract() tags = %v, want %v", got, want)
	}
}

func TestExtract_Frontmatter(t *testing.T) {
	raw := `---
tags: [backtest, strategy]
Type: BACKTEST
sharpe: 2.35
cagr: 18.5
drawdown: -12.3
validated: true
author: quant0
---
# Mean Reversion Backtest

Body mentions #mean-reversion and #backtest again.
`

	doc := Extract(raw)

	want := []string{"#backtest", "#mean-reversion", "#strategy"}
	if !slices.Equal(doc.Tags, want) {
		t.Errorf("Extract() tags = %v, want %v", doc.Tags, want)
	}

	tests := []struct {
		field string
		want  Value
	}{
		{"Type", String("BACKTEST")},
		{"sharpe", Number(2.35)},
		{"cagr", Number(18.5)},
		{"drawdown", Number(-12.3)},
		{"validated", Boolean(true)},
		{"author", String("quant0")},
	}
	for _, tt := range tests {
		got, ok := doc.Field(tt.field)
		if !ok {
			t.Errorf("Field(%q) missing", tt.field)
			continue
		}
		if got != tt.want {
			t.Errorf("Field(%q) = %+v, want %+v", tt.field, got, tt.want)
		}
	}

	// Lookup is case-insensitive, stored casing is the header's.
	if _, ok := doc.Field("SHARPE"); !ok {
		t.Error("Field(SHARPE) should resolve case-insensitively")
	}
	if _, ok := doc.Fields["sharpe"]; !ok {
		t.Error("Fields should keep the header's original casing")
	}
}

func TestExtract_FrontmatterCommaTags(t *testing.T) {
	raw := `---
tags: momentum, pairs-trading
---
Body.
`

	doc := Extract(raw)
	if got, want := doc.Tags, []string{"#momentum", "#pairs-trading"}; !slices.Equal(got, want) {
		t.Errorf("Extract() tags = %v, want %v", got, want)
	}
}

func TestExtract_FrontmatterTagFiltering(t *testing.T) {
	// Header tags pass through the same exclusions as inline tags.
	raw := `---
tags: [fff, h2, x, research]
---
`

	doc := Extract(raw)
	if got, want := doc.Tags, []string{"#research"}; !slices.Equal(got, want) {
		t.Errorf("Extract() tags = %v, want %v", got, want)
	}
}

func TestExtract_MalformedFrontmatter(t *testing.T) {
	raw := `---
tags: [unclosed
:::bad yaml:::
---
Body still has #survivor tag.
`

	doc := Extract(raw)

	if !slices.Contains(doc.Tags, "#survivor") {
		t.Errorf("Extract() tags = %v, inline scan should survive a bad header", doc.Tags)
	}
	if len(doc.Fields) != 0 {
		t.Errorf("Extract() fields = %v, want none from a malformed header", doc.Fields)
	}
}

func TestExtract_EmptyHeader(t *testing.T) {
	doc := Extract("---\n---\nJust a body with #one tag.\n")

	if got, want := doc.Tags, []string{"#one"}; !slices.Equal(got, want) {
		t.Errorf("Extract() tags = %v, want %v", got, want)
	}
	if len(doc.Fields) != 0 {
		t.Errorf("Extract() fields = %v, want empty", doc.Fields)
	}
}

func TestExtract_Empty(t *testing.T) {
	doc := Extract("")

	if len(doc.Tags) != 0 || len(doc.Fields) != 0 {
		t.Errorf("Extract(empty) = %+v, want empty document", doc)
	}
}

func TestExtract_HeaderAndInlineDuplicate(t *testing.T) {
	raw := `---
tags: [Backtest]
---
Body mentions #backtest once more.
`

	doc := Extract(raw)

	if len(doc.Tags) != 1 {
		t.Fatalf("Extract() tags = %v, want one canonical tag", doc.Tags)
	}
	// The header is the first source encountered, so its casing sticks.
	if doc.Tags[0] != "#Backtest" {
		t.Errorf("Extract() tag = %q, want header casing %q", doc.Tags[0], "#Backtest")
	}
}

func TestExtract_ColorInTableCell(t *testing.T) {
	raw := `| name | color |
|------|-------|
| warm | #ffaa00 |

Tagged with #palette.
`

	doc := Extract(raw)
	if got, want := doc.Tags, []string{"#palette"}; !slices.Equal(got, want) {
		t.Errorf("Extract() tags = %v, want %v", got, want)
	}
}

func TestValue_Coercion(t *testing.T) {
	tests := []struct {
		in   any
		want Value
	}{
		{42, Number(42)},
		{2.5, Number(2.5)},
		{true, Boolean(true)},
		{"1.75", Number(1.75)},
		{"False", Boolean(false)},
		{"OrderbookImbalance", String("OrderbookImbalance")},
		{nil, String("")},
	}

	for _, tt := range tests {
		if got := FromNative(tt.in); got != tt.want {
			t.Errorf("FromNative(%v) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestDocument_HasTag(t *testing.T) {
	doc := Extract("Tagged #Strategy here.")

	for _, probe := range []string{"#strategy", "strategy", "#Strategy"} {
		if !doc.HasTag(probe) {
			t.Errorf("HasTag(%q) = false, want true", probe)
		}
	}
	if doc.HasTag("#momentum") {
		t.Error("HasTag(#momentum) = true, want false")
	}
}
