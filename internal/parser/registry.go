package parser

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// LanguageSpec defines the tree-sitter grammar and queries for a language.
// All queries are S-expressions; DeclQuery must use @decl for the outer
// declaration node and @name for its identifier. ImportQuery captures the
// imported module as @path, CallQuery the callee identifier as @callee,
// and InheritQuery a @derived/@base pair. Any query may be empty.
type LanguageSpec struct {
	Language     *sitter.Language
	DeclQuery    string
	ImportQuery  string
	CallQuery    string
	InheritQuery string
	Extensions   []string
}

// Registry maps file extensions to language specs. It is constructed once
// and injected into the Parser; there is no ambient global grammar state.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]*LanguageSpec // extension (without dot) → spec
	names map[string]string        // extension → language name
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		specs: make(map[string]*LanguageSpec),
		names: make(map[string]string),
	}
}

// Register adds a language spec under the given name.
func (r *Registry) Register(name string, spec *LanguageSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range spec.Extensions {
		r.specs[ext] = spec
		r.names[ext] = name
	}
}

// Lookup returns the spec and language name for a file path based on its
// extension, or nil when no grammar is registered.
func (r *Registry) Lookup(path string) (*LanguageSpec, string) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[ext]
	if !ok {
		return nil, ""
	}
	return spec, r.names[ext]
}

// LanguageName returns the language name for a file path, or "".
func (r *Registry) LanguageName(path string) string {
	_, name := r.Lookup(path)
	return name
}
