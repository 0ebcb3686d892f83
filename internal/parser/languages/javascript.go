package languages

import (
	"scribe/internal/parser"

	"github.com/smacker/go-tree-sitter/javascript"
)

func RegisterJavaScript(r *parser.Registry) {
	r.Register("javascript", &parser.LanguageSpec{
		Language: javascript.GetLanguage(),
		DeclQuery: `
			(function_declaration name: (identifier) @name) @decl
			(class_declaration name: (identifier) @name) @decl
			(method_definition name: (property_identifier) @name) @decl
			(lexical_declaration (variable_declarator name: (identifier) @name value: (arrow_function))) @decl
		`,
		ImportQuery: `
			(import_statement source: (string) @path)
		`,
		CallQuery: `
			(call_expression function: (identifier) @callee)
		`,
		InheritQuery: `
			(class_declaration (class_heritage (identifier) @base)) @derived
		`,
		Extensions: []string{"js", "jsx", "mjs", "cjs"},
	})
}
