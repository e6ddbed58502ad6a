package metadata

import (
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	fencedCodeRe  = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe  = regexp.MustCompile("`[^`]*`")
	htmlTagRe     = regexp.MustCompile(`<[^>]+>`)
	styleAttrRe   = regexp.MustCompile(`(?i)\bstyle\s*=\s*['"][^'"]*['"]`)
	hashtagRe     = regexp.MustCompile(`(^|[^#\w])(#[A-Za-z][A-Za-z0-9_-]*)`)
	hexDigitsRe   = regexp.MustCompile(`^[A-Fa-f0-9]+$`)
	headingMarkRe = regexp.MustCompile(`^[hH]\d+$`)
)

// Extract parses raw document text into a Document: a leading YAML
// frontmatter block (if present and well-formed) plus inline hashtags
// from the body. A malformed frontmatter block is treated as absent,
// never as a failure; extraction always succeeds.
func Extract(raw string) Document {
	doc := NewDocument()

	// canonical lowercase form -> stored spelling; header tags are
	// merged first so their casing wins over inline occurrences.
	canon := make(map[string]string)

	header, body := splitFrontmatter(raw)
	if header != nil {
		mergeHeader(&doc, header, canon)
	}

	for _, tag := range scanInlineTags(body) {
		key := strings.ToLower(tag)
		if _, seen := canon[key]; !seen {
			canon[key] = tag
		}
	}

	doc.Tags = doc.Tags[:0]
	for _, spelling := range canon {
		doc.Tags = append(doc.Tags, spelling)
	}
	sort.Strings(doc.Tags)

	return doc
}

// splitFrontmatter separates a leading "---" delimited YAML block from
// the body. Returns a nil map when there is no parseable block; the
// body is then the full input so inline scanning still proceeds.
func splitFrontmatter(raw string) (map[string]any, string) {
	rest, ok := strings.CutPrefix(raw, "---\n")
	if !ok {
		rest, ok = strings.CutPrefix(raw, "---\r\n")
	}
	if !ok {
		return nil, raw
	}

	// An immediately closed block is a valid, empty header.
	if after, closed := strings.CutPrefix(rest, "---\n"); closed {
		return map[string]any{}, after
	}

	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, raw
	}
	block := rest[:end]
	body := rest[end+len("\n---"):]
	// The closing marker must terminate its line.
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else if strings.TrimSpace(body) != "" {
		return nil, raw
	} else {
		body = ""
	}

	var header map[string]any
	if err := yaml.Unmarshal([]byte(block), &header); err != nil {
		return nil, raw
	}
	return header, body
}

// mergeHeader folds frontmatter entries into fields and tags.
// The "tags" key (any casing) becomes tags, as a YAML list or a
// comma-separated string; every other key becomes a typed field.
func mergeHeader(doc *Document, header map[string]any, canon map[string]string) {
	for key, raw := range header {
		if strings.EqualFold(key, "tags") {
			for _, tag := range headerTags(raw) {
				ck := strings.ToLower(tag)
				if _, seen := canon[ck]; !seen {
					canon[ck] = tag
				}
			}
			continue
		}

		// First source encountered keeps its casing; the structured
		// header is processed before inline scanning, so it wins.
		if _, exists := doc.Field(key); !exists {
			doc.Fields[key] = FromNative(raw)
		}
	}
}

// headerTags normalizes a frontmatter tags value into filtered,
// #-prefixed tag strings.
func headerTags(raw any) []string {
	var candidates []string
	switch t := raw.(type) {
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				candidates = append(candidates, s)
			}
		}
	case string:
		candidates = strings.Split(t, ",")
	}

	var tags []string
	for _, c := range candidates {
		tag := strings.TrimSpace(c)
		if tag == "" {
			continue
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		if validTag(tag) {
			tags = append(tags, tag)
		}
	}
	return tags
}

// scanInlineTags finds #word tokens in body text after removing fenced
// code blocks, inline code spans, HTML tags, and style attributes, so
// `#include` in a code sample or a color in an HTML style never counts.
func scanInlineTags(body string) []string {
	text := fencedCodeRe.ReplaceAllString(body, "")
	text = inlineCodeRe.ReplaceAllString(text, "")
	text = styleAttrRe.ReplaceAllString(text, "")
	text = htmlTagRe.ReplaceAllString(text, "")

	var tags []string
	for _, m := range hashtagRe.FindAllStringSubmatch(text, -1) {
		if tag := m[2]; validTag(tag) {
			tags = append(tags, tag)
		}
	}
	return tags
}

// validTag filters false positives: bare "#x" fragments, hex color
// codes (#fff, #ff00d0 and the 4/8 digit alpha forms), and markdown
// heading markers like #h2.
func validTag(tag string) bool {
	if len(tag) <= 2 {
		return false
	}
	rest := strings.TrimPrefix(tag, "#")
	if hexDigitsRe.MatchString(rest) {
		switch len(rest) {
		case 3, 4, 6, 8:
			return false
		}
	}
	return !headingMarkRe.MatchString(rest)
}
