// Package validate is the syntax gate bracketing every patch mutation.
// It parses plugin sources with tree-sitter and reports ERROR or MISSING
// nodes with their positions. It never executes the code and never touches
// the network.
package validate

import (
	"context"
	"fmt"
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/php"
)

// Language selects the grammar used to parse a source file.
type Language string

const (
	LangPHP        Language = "php"
	LangJavaScript Language = "javascript"
)

// maxDiagnostics caps how many parse errors a single Validate reports.
const maxDiagnostics = 20

// Diagnostic describes one syntax error location.
type Diagnostic struct {
	Line    uint32 `json:"line"` // 1-based
	Column  uint32 `json:"column"`
	Message string `json:"message"`
	Snippet string `json:"snippet,omitempty"`
}

func (d Diagnostic) String() string {
	if d.Snippet != "" {
		return fmt.Sprintf("%d:%d: %s near %q", d.Line, d.Column, d.Message, d.Snippet)
	}
	return fmt.Sprintf("%d:%d: %s", d.Line, d.Column, d.Message)
}

// Result is the outcome of a validation.
type Result struct {
	OK          bool
	Diagnostics []Diagnostic
}

// Err renders the diagnostics as a single error, or nil when valid.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	msgs := make([]string, len(r.Diagnostics))
	for i, d := range r.Diagnostics {
		msgs[i] = d.String()
	}
	return fmt.Errorf("syntax invalid: %s", strings.Join(msgs, "; "))
}

// DetectLanguage maps a file name to a supported language, or "" if none.
func DetectLanguage(filename string) Language {
	switch path.Ext(filename) {
	case ".php":
		return LangPHP
	case ".js", ".mjs":
		return LangJavaScript
	default:
		return ""
	}
}

func grammar(lang Language) *sitter.Language {
	switch lang {
	case LangPHP:
		return php.GetLanguage()
	case LangJavaScript:
		return javascript.GetLanguage()
	default:
		return nil
	}
}

// Validate parses source and reports syntactic well-formedness.
// An unsupported language is an error rather than a silent pass: a file the
// gate cannot check must not be patched.
func Validate(source []byte, lang Language) (Result, error) {
	tsLang := grammar(lang)
	if tsLang == nil {
		return Result{}, fmt.Errorf("unsupported language %q", lang)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(tsLang)

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return Result{}, fmt.Errorf("parsing: %w", err)
	}
	defer tree.Close()

	diags := collectErrors(tree.RootNode(), source, nil)
	return Result{OK: len(diags) == 0, Diagnostics: diags}, nil
}

// collectErrors walks the parse tree gathering ERROR and MISSING nodes.
func collectErrors(node *sitter.Node, source []byte, diags []Diagnostic) []Diagnostic {
	if node == nil || len(diags) >= maxDiagnostics {
		return diags
	}

	if node.IsError() || node.IsMissing() {
		msg := "syntax error"
		if node.IsMissing() {
			msg = fmt.Sprintf("missing %s", node.Type())
		}
		point := node.StartPoint()
		diags = append(diags, Diagnostic{
			Line:    point.Row + 1,
			Column:  point.Column,
			Message: msg,
			Snippet: snippet(node, source),
		})
		// An ERROR subtree is all noise below this point.
		return diags
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		diags = collectErrors(node.Child(i), source, diags)
		if len(diags) >= maxDiagnostics {
			return diags
		}
	}
	return diags
}

// snippet extracts a short excerpt of the offending region.
func snippet(node *sitter.Node, source []byte) string {
	start, end := node.StartByte(), node.EndByte()
	if start >= uint32(len(source)) {
		return ""
	}
	if end > uint32(len(source)) {
		end = uint32(len(source))
	}
	const limit = 40
	if end-start > limit {
		end = start + limit
	}
	return strings.TrimSpace(string(source[start:end]))
}
