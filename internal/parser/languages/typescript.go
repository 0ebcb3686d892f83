package languages

import (
	"scribe/internal/parser"

	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

func RegisterTypeScript(r *parser.Registry) {
	r.Register("typescript", &parser.LanguageSpec{
		Language: typescript.GetLanguage(),
		DeclQuery: `
			(function_declaration name: (identifier) @name) @decl
			(class_declaration name: (type_identifier) @name) @decl
			(method_definition name: (property_identifier) @name) @decl
			(interface_declaration name: (type_identifier) @name) @decl
			(type_alias_declaration name: (type_identifier) @name) @decl
			(lexical_declaration (variable_declarator name: (identifier) @name value: (arrow_function))) @decl
		`,
		ImportQuery: `
			(import_statement source: (string) @path)
		`,
		CallQuery: `
			(call_expression function: (identifier) @callee)
		`,
		Extensions: []string{"ts", "tsx"},
	})
}
