package languages

import (
	"scribe/internal/parser"

	"github.com/smacker/go-tree-sitter/python"
)

func RegisterPython(r *parser.Registry) {
	r.Register("python", &parser.LanguageSpec{
		Language: python.GetLanguage(),
		DeclQuery: `
			(function_definition name: (identifier) @name) @decl
			(class_definition name: (identifier) @name) @decl
		`,
		ImportQuery: `
			(import_statement name: (dotted_name) @path)
			(import_from_statement module_name: (dotted_name) @path)
		`,
		CallQuery: `
			(call function: (identifier) @callee)
		`,
		InheritQuery: `
			(class_definition superclasses: (argument_list (identifier) @base)) @derived
		`,
		Extensions: []string{"py", "pyi"},
	})
}
