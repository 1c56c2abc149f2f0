// Package structural parses individual source files into structural
// snapshots (functions, classes, imports, cyclomatic complexity) using
// tree-sitter, and diffs two snapshots. Snapshots are recomputed on demand
// and never versioned.
package structural

import (
	"context"
	"errors"
	"fmt"
	"os"

	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/Sumatoshi-tech/testfang/pkg/safeconv"
	"github.com/Sumatoshi-tech/testfang/pkg/textutil"
)

// ErrParse marks a file that could not be read or parsed. Callers treat it
// as a soft failure: log, exclude the file, continue.
var ErrParse = errors.New("unparseable source file")

// Element kinds.
const (
	KindFunction = "function"
	KindClass    = "class"
)

// Element is one structural code element (function, method, class or type).
type Element struct {
	Name       string
	Kind       string
	StartLine  int
	EndLine    int
	Complexity int
}

// LineSpan returns the number of lines the element covers.
func (e Element) LineSpan() int {
	return e.EndLine - e.StartLine
}

// Snapshot holds the structural analysis of one source file at one revision.
type Snapshot struct {
	Imports         map[string]struct{}
	FilePath        string
	Functions       []Element
	Classes         []Element
	TotalLines      int
	ComplexityScore int
}

// Analyzer extracts structural snapshots from source files.
type Analyzer struct{}

// NewAnalyzer creates a structural analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze parses the file at path and returns its structural snapshot.
// Missing files and parse failures yield ErrParse; the pipeline degrades
// by excluding the file rather than aborting.
func (a *Analyzer) Analyze(ctx context.Context, path string) (*Snapshot, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, path, err)
	}

	return a.AnalyzeSource(ctx, path, content)
}

// AnalyzeSource parses already-loaded file content. The filename selects
// the grammar by extension.
func (a *Analyzer) AnalyzeSource(ctx context.Context, path string, content []byte) (*Snapshot, error) {
	gram := grammarForFile(path)
	if gram == nil {
		return nil, fmt.Errorf("%w: %s: unsupported language", ErrParse, path)
	}

	if textutil.IsBinary(content) {
		return nil, fmt.Errorf("%w: %s: binary content", ErrParse, path)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(gram.language())

	tree, err := parser.ParseString(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.IsNull() {
		return nil, fmt.Errorf("%w: %s: no syntax tree", ErrParse, path)
	}

	snapshot := &Snapshot{
		FilePath:   path,
		Imports:    make(map[string]struct{}),
		TotalLines: textutil.CountLines(content),
	}

	a.collect(gram, root, content, snapshot)

	for _, fn := range snapshot.Functions {
		snapshot.ComplexityScore += fn.Complexity
	}

	for _, class := range snapshot.Classes {
		snapshot.ComplexityScore += class.Complexity
	}

	return snapshot, nil
}

// collect walks the syntax tree and gathers elements and imports.
func (a *Analyzer) collect(gram *grammar, node sitter.Node, source []byte, snapshot *Snapshot) {
	kind := node.Type()

	switch {
	case gram.functionKinds[kind]:
		snapshot.Functions = append(snapshot.Functions, a.element(gram, node, source, KindFunction))
	case gram.classKinds[kind]:
		snapshot.Classes = append(snapshot.Classes, a.element(gram, node, source, KindClass))
	case gram.importKinds[kind]:
		for _, imp := range gram.extractImports(node, source) {
			snapshot.Imports[imp] = struct{}{}
		}
	}

	for idx := range node.NamedChildCount() {
		a.collect(gram, node.NamedChild(idx), source, snapshot)
	}
}

// element builds an Element with the cyclomatic complexity of its subtree.
func (a *Analyzer) element(gram *grammar, node sitter.Node, source []byte, kind string) Element {
	name := nodeFieldText(node, "name", source)
	if name == "" {
		name = "anonymous"
	}

	return Element{
		Name:       name,
		Kind:       kind,
		StartLine:  safeconv.MustUintToInt(uint(node.StartPoint().Row)) + 1,
		EndLine:    safeconv.MustUintToInt(uint(node.EndPoint().Row)) + 1,
		Complexity: a.complexity(gram, node, source),
	}
}

// complexity computes cyclomatic complexity for a subtree: a base of 1,
// plus one per branch, loop or exception handler, plus one per boolean
// connective, plus one per comprehension.
func (a *Analyzer) complexity(gram *grammar, node sitter.Node, source []byte) int {
	complexity := 1
	a.countDecisions(gram, node, source, &complexity)

	return complexity
}

func (a *Analyzer) countDecisions(gram *grammar, node sitter.Node, source []byte, complexity *int) {
	for idx := range node.NamedChildCount() {
		child := node.NamedChild(idx)
		kind := child.Type()

		switch {
		case gram.branchKinds[kind]:
			*complexity++
		case gram.comprehensionKinds[kind]:
			*complexity++
		case kind == gram.booleanKind && gram.isBooleanConnective(child, source):
			*complexity++
		}

		a.countDecisions(gram, child, source, complexity)
	}
}

// nodeText returns the source text covered by a node.
func nodeText(node sitter.Node, source []byte) string {
	start, end := node.StartByte(), node.EndByte()
	if int(end) > len(source) || start > end {
		return ""
	}

	return string(source[start:end])
}

// nodeFieldText returns the text of a named field child, or "".
func nodeFieldText(node sitter.Node, field string, source []byte) string {
	child := node.ChildByFieldName(field)
	if child.IsNull() {
		return ""
	}

	return nodeText(child, source)
}
