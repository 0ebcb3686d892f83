package languages

import (
	"scribe/internal/parser"

	"github.com/smacker/go-tree-sitter/golang"
)

func RegisterGo(r *parser.Registry) {
	r.Register("go", &parser.LanguageSpec{
		Language: golang.GetLanguage(),
		DeclQuery: `
			(function_declaration name: (identifier) @name) @decl
			(method_declaration name: (field_identifier) @name) @decl
			(type_declaration (type_spec name: (type_identifier) @name)) @decl
		`,
		ImportQuery: `
			(import_spec path: (interpreted_string_literal) @path)
		`,
		CallQuery: `
			(call_expression function: (identifier) @callee)
		`,
		Extensions: []string{"go"},
	})
}
