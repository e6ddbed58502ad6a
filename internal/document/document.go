// Package document loads knowledge files and splits their content into
// embeddable chunks. A file's Kind (markdown, source, notebook) decides
// how it is parsed and where chunk boundaries may fall.
package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFile marks a file whose extension no loader handles.
var ErrUnsupportedFile = errors.New("unsupported file type")

// Kind classifies a file for loading and chunking purposes.
type Kind int

const (
	KindUnknown Kind = iota
	KindMarkdown
	KindSource
	KindNotebook
)

// String returns the kind name as stored in chunk metadata.
func (k Kind) String() string {
	switch k {
	case KindMarkdown:
		return "markdown"
	case KindSource:
		return "source"
	case KindNotebook:
		return "notebook"
	default:
		return "unknown"
	}
}

// sourceExtensions lists the plain-text source extensions indexed as a
// single structural unit.
var sourceExtensions = map[string]bool{
	".go":   true,
	".py":   true,
	".pyx":  true,
	".js":   true,
	".ts":   true,
	".c":    true,
	".cpp":  true,
	".h":    true,
	".rs":   true,
	".java": true,
	".sh":   true,
	".sql":  true,
	".yaml": true,
	".yml":  true,
	".toml": true,
	".json": true,
	".txt":  true,
}

// Detect maps a file path to its Kind by extension. Unrecognized
// extensions yield KindUnknown.
func Detect(path string) Kind {
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case ext == ".md":
		return KindMarkdown
	case ext == ".ipynb":
		return KindNotebook
	case sourceExtensions[ext]:
		return KindSource
	default:
		return KindUnknown
	}
}

// Recognized reports whether the path has an extension the indexer
// handles at all.
func Recognized(path string) bool {
	return Detect(path) != KindUnknown
}

// NotebookInfo carries notebook-level facts surfaced as metadata fields
// on every chunk of the notebook.
type NotebookInfo struct {
	KernelSpec    string
	CellCount     int
	CodeCells     int
	MarkdownCells int
}

// LoadResult is the parsed content of a single file.
//
// Text is what gets chunked and embedded. TagSource is the subset of
// the content scanned for hashtags and header fields: for notebooks
// only the markdown cells, for everything else the full text.
type LoadResult struct {
	Text      string
	TagSource string
	Notebook  *NotebookInfo
}

// LoadOptions tune file parsing.
type LoadOptions struct {
	// SkipOutputs drops code-cell outputs from notebooks so only cell
	// sources are indexed.
	SkipOutputs bool
}

// Load reads and parses the file at path according to kind. Unreadable
// files and malformed notebooks return an error; callers record it and
// move on to the next file.
func Load(path string, kind Kind, opts LoadOptions) (*LoadResult, error) {
	if kind == KindUnknown {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if kind == KindNotebook {
		return parseNotebook(raw, opts.SkipOutputs)
	}

	text := string(raw)
	return &LoadResult{Text: text, TagSource: text}, nil
}

// nbText tolerates the two source encodings the notebook format allows:
// a plain string or a list of line strings.
type nbText string

func (t *nbText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = nbText(s)
		return nil
	}
	var lines []string
	if err := json.Unmarshal(data, &lines); err != nil {
		return err
	}
	*t = nbText(strings.Join(lines, ""))
	return nil
}

type nbOutput struct {
	OutputType string            `json:"output_type"`
	Text       nbText            `json:"text"`
	Data       map[string]nbText `json:"data"`
}

type nbCell struct {
	CellType string     `json:"cell_type"`
	Source   nbText     `json:"source"`
	Outputs  []nbOutput `json:"outputs"`
}

type nbFile struct {
	Cells    []nbCell `json:"cells"`
	Metadata struct {
		KernelSpec struct {
			Name string `json:"name"`
		} `json:"kernelspec"`
	} `json:"metadata"`
}

func parseNotebook(raw []byte, skipOutputs bool) (*LoadResult, error) {
	var nb nbFile
	if err := json.Unmarshal(raw, &nb); err != nil {
		return nil, fmt.Errorf("failed to parse notebook: %w", err)
	}

	info := &NotebookInfo{
		KernelSpec: nb.Metadata.KernelSpec.Name,
		CellCount:  len(nb.Cells),
	}

	var parts []string
	var tagParts []string

	for i, cell := range nb.Cells {
		source := string(cell.Source)

		switch cell.CellType {
		case "code":
			info.CodeCells++
		case "markdown":
			info.MarkdownCells++
			if strings.TrimSpace(source) != "" {
				tagParts = append(tagParts, source)
			}
		}

		if (cell.CellType == "code" || cell.CellType == "markdown") && strings.TrimSpace(source) != "" {
			parts = append(parts, fmt.Sprintf("# Cell %d (%s):\n%s\n", i+1, cell.CellType, source))
		}

		if cell.CellType != "code" || skipOutputs {
			continue
		}
		for _, out := range cell.Outputs {
			parts = append(parts, renderOutput(out)...)
		}
	}

	return &LoadResult{
		Text:      strings.Join(parts, "\n"),
		TagSource: strings.Join(tagParts, "\n\n"),
		Notebook:  info,
	}, nil
}

// renderOutput turns one cell output into zero or more text parts.
// Images, interactive widget payloads and figure representations carry
// no indexable text and are dropped.
func renderOutput(out nbOutput) []string {
	switch out.OutputType {
	case "stream":
		if text := string(out.Text); strings.TrimSpace(text) != "" {
			return []string{fmt.Sprintf("# Output (stream):\n%s\n", text)}
		}
		return nil

	case "execute_result", "display_data":
		if _, ok := out.Data["application/vnd.jupyter.widget-view+json"]; ok {
			return nil
		}
		for mime := range out.Data {
			if strings.HasPrefix(mime, "image/") {
				return nil
			}
		}

		var parts []string
		if html := string(out.Data["text/html"]); strings.TrimSpace(html) != "" {
			parts = append(parts, fmt.Sprintf("# Output (html):\n%s\n", html))
		}
		if plain := string(out.Data["text/plain"]); strings.TrimSpace(plain) != "" && !isFigureRepr(plain) {
			parts = append(parts, fmt.Sprintf("# Output (text):\n%s\n", plain))
		}
		return parts

	default:
		return nil
	}
}

// isFigureRepr reports whether a text/plain payload is just the textual
// shadow of a rendered plot.
func isFigureRepr(text string) bool {
	if strings.HasPrefix(text, "<Figure size") {
		return true
	}
	if strings.Contains(strings.ToLower(text), "plotly") {
		return true
	}
	return strings.Contains(text, "matplotlib.figure.Figure")
}
