package structural

import (
	"path/filepath"
	"strings"
	"sync"
	"unsafe"

	forest_go "github.com/alexaandru/go-sitter-forest/go"
	forest_python "github.com/alexaandru/go-sitter-forest/python"
	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// grammar describes how one language's syntax tree maps onto structural
// snapshot concepts.
type grammar struct {
	languageFunc       func() unsafe.Pointer
	extractImports     func(node sitter.Node, source []byte) []string
	name               string
	booleanKind        string
	functionKinds      map[string]bool
	classKinds         map[string]bool
	importKinds        map[string]bool
	branchKinds        map[string]bool
	comprehensionKinds map[string]bool

	langOnce sync.Once
	lang     *sitter.Language
}

// language returns the cached tree-sitter language, initializing it lazily.
func (g *grammar) language() *sitter.Language {
	g.langOnce.Do(func() {
		g.lang = sitter.NewLanguage(g.languageFunc())
	})

	return g.lang
}

// isBooleanConnective reports whether a node of the grammar's boolean kind
// actually carries a boolean operator. Python's boolean_operator is always
// one; Go's binary_expression must be checked for && or ||.
func (g *grammar) isBooleanConnective(node sitter.Node, source []byte) bool {
	if g.name == "python" {
		return true
	}

	operator := nodeFieldText(node, "operator", source)

	return operator == "&&" || operator == "||"
}

var goGrammar = &grammar{
	name:         "go",
	languageFunc: forest_go.GetLanguage,
	functionKinds: map[string]bool{
		"function_declaration": true,
		"method_declaration":   true,
	},
	classKinds: map[string]bool{
		"type_spec": true,
	},
	importKinds: map[string]bool{
		"import_spec": true,
	},
	branchKinds: map[string]bool{
		"if_statement":                true,
		"for_statement":               true,
		"expression_switch_statement": true,
		"type_switch_statement":       true,
		"select_statement":            true,
	},
	comprehensionKinds: map[string]bool{},
	booleanKind:        "binary_expression",
	extractImports:     extractGoImport,
}

var pythonGrammar = &grammar{
	name:         "python",
	languageFunc: forest_python.GetLanguage,
	functionKinds: map[string]bool{
		"function_definition": true,
	},
	classKinds: map[string]bool{
		"class_definition": true,
	},
	importKinds: map[string]bool{
		"import_statement":      true,
		"import_from_statement": true,
	},
	branchKinds: map[string]bool{
		"if_statement":    true,
		"elif_clause":     true,
		"while_statement": true,
		"for_statement":   true,
		"except_clause":   true,
	},
	comprehensionKinds: map[string]bool{
		"list_comprehension":       true,
		"set_comprehension":        true,
		"dictionary_comprehension": true,
		"generator_expression":     true,
	},
	booleanKind:    "boolean_operator",
	extractImports: extractPythonImport,
}

// grammarForFile selects a grammar by file extension, or nil when the
// language is unsupported.
func grammarForFile(path string) *grammar {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return goGrammar
	case ".py":
		return pythonGrammar
	default:
		return nil
	}
}

// extractGoImport pulls the import path out of an import_spec node.
func extractGoImport(node sitter.Node, source []byte) []string {
	path := nodeFieldText(node, "path", source)
	path = strings.Trim(path, "\"`")

	if path == "" {
		return nil
	}

	return []string{path}
}

// extractPythonImport flattens import and from-import statements into
// dotted module targets, mirroring how "from m import a" is recorded as
// "m.a" and "import m" as "m".
func extractPythonImport(node sitter.Node, source []byte) []string {
	var imports []string

	switch node.Type() {
	case "import_statement":
		for idx := range node.NamedChildCount() {
			child := node.NamedChild(idx)

			switch child.Type() {
			case "dotted_name":
				imports = append(imports, nodeText(child, source))
			case "aliased_import":
				if name := nodeFieldText(child, "name", source); name != "" {
					imports = append(imports, name)
				}
			}
		}
	case "import_from_statement":
		module := nodeFieldText(node, "module_name", source)

		moduleNode := node.ChildByFieldName("module_name")

		for idx := range node.NamedChildCount() {
			child := node.NamedChild(idx)
			if !moduleNode.IsNull() && child.StartByte() == moduleNode.StartByte() {
				continue
			}

			var name string

			switch child.Type() {
			case "dotted_name", "identifier":
				name = nodeText(child, source)
			case "aliased_import":
				name = nodeFieldText(child, "name", source)
			case "wildcard_import":
				imports = append(imports, module)

				continue
			}

			if name == "" {
				continue
			}

			if module != "" {
				imports = append(imports, module+"."+name)
			} else {
				imports = append(imports, name)
			}
		}

		if node.NamedChildCount() == 1 && module != "" {
			imports = append(imports, module)
		}
	}

	return imports
}
