package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"scribe/internal/ingest"
	"scribe/internal/logging"
	"scribe/internal/parser"
	"scribe/internal/retrieval"
	"scribe/internal/store"
	"scribe/internal/tools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server exposing the code intelligence tools",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	dbPath := resolveDBPath(wd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("index not found at %s\nRun 'scribe index <path>' first", dbPath)
	}

	logger, err := logging.New(flagDebug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer st.Close()

	ig := ingest.New(st, parser.New(newRegistry()), 1, logger)
	svc := tools.New(st, ig, wd)
	engine := retrieval.New(st)

	s := mcpserver.NewMCPServer("scribe", "1.0.0", mcpserver.WithToolCapabilities(false))

	s.AddTool(listFilesTool(), makeListFilesHandler(svc))
	s.AddTool(readFileTool(), makeReadFileHandler(svc))
	s.AddTool(getSymbolsTool(), makeGetSymbolsHandler(svc))
	s.AddTool(getImportsTool(), makeGetImportsHandler(svc))
	s.AddTool(getDefinitionTool(), makeGetDefinitionHandler(svc))
	s.AddTool(getReferencesTool(), makeGetReferencesHandler(svc))
	s.AddTool(searchTextTool(), makeSearchTextHandler(svc))
	s.AddTool(getStructureTool(), makeGetStructureHandler(svc))
	s.AddTool(retrieveContextTool(), makeRetrieveHandler(engine))

	return mcpserver.ServeStdio(s)
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// --- Tool schema builders ---

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

func listFilesTool() mcp.Tool {
	return mcp.NewTool("list_files",
		mcp.WithDescription("List indexed files with language and line count. Optionally filter by a glob pattern or substring."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("pattern",
			mcp.Description("Glob pattern or substring matched against relative paths"),
		),
	)
}

func readFileTool() mcp.Tool {
	return mcp.NewTool("read_file",
		mcp.WithDescription("Read a line range from a file. The file is indexed as a side effect, so later citations against it can be verified."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("File path relative to the project root"),
		),
		mcp.WithNumber("start",
			mcp.Description("First line, 1-indexed (default: start of file)"),
		),
		mcp.WithNumber("end",
			mcp.Description("Last line, inclusive (default: end of file)"),
		),
	)
}

func getSymbolsTool() mcp.Tool {
	return mcp.NewTool("get_symbols",
		mcp.WithDescription("List the symbols declared in a file: functions, methods, classes, types."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("File path as indexed"),
		),
		mcp.WithString("kind",
			mcp.Description("Optional kind filter: function, method, class, type, interface"),
		),
	)
}

func getImportsTool() mcp.Tool {
	return mcp.NewTool("get_imports",
		mcp.WithDescription("List the indexed files a file imports."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("File path as indexed"),
		),
	)
}

func getDefinitionTool() mcp.Tool {
	return mcp.NewTool("get_definition",
		mcp.WithDescription("Find where a symbol is declared, with file, lines, and signature."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Exact symbol name"),
		),
	)
}

func getReferencesTool() mcp.Tool {
	return mcp.NewTool("get_references",
		mcp.WithDescription("Find usage sites of a symbol name across the indexed codebase."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Exact symbol name"),
		),
	)
}

func searchTextTool() mcp.Tool {
	return mcp.NewTool("search_text",
		mcp.WithDescription("Full-text search over indexed file content. Returns line-level matches with snippets."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search terms"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum matches to return (default 20)"),
		),
	)
}

func getStructureTool() mcp.Tool {
	return mcp.NewTool("get_structure",
		mcp.WithDescription("Summarize a file's shape: classes, functions, and top-level names."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("File path as indexed"),
		),
	)
}

func retrieveContextTool() mcp.Tool {
	return mcp.NewTool("retrieve_context",
		mcp.WithDescription("Retrieve the most relevant code chunks for a query, ranked by lexical match, symbol overlap, and reference-graph proximity, within a character budget."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language or keyword query"),
		),
		mcp.WithNumber("budget",
			mcp.Description("Maximum total characters of chunk text to return (default 8000)"),
		),
	)
}

// --- Handler factories ---

func makeListFilesHandler(svc *tools.Service) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		files, err := svc.ListFiles(req.GetString("pattern", ""))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list files failed: %v", err)), nil
		}
		return jsonResult(files)
	}
}

func makeReadFileHandler(svc *tools.Service) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := req.GetString("path", "")
		if path == "" {
			return mcp.NewToolResultError("path is required"), nil
		}
		view, err := svc.ReadFile(path, req.GetInt("start", 0), req.GetInt("end", 0))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("read failed: %v", err)), nil
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "## %s (lines %d-%d of %d)\n\n```\n%s\n```\n",
			view.Path, view.StartLine, view.EndLine, view.LineCount, view.Content)
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func makeGetSymbolsHandler(svc *tools.Service) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := req.GetString("path", "")
		if path == "" {
			return mcp.NewToolResultError("path is required"), nil
		}
		symbols, err := svc.GetSymbols(path, req.GetString("kind", ""))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("get symbols failed: %v", err)), nil
		}
		return jsonResult(symbols)
	}
}

func makeGetImportsHandler(svc *tools.Service) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := req.GetString("path", "")
		if path == "" {
			return mcp.NewToolResultError("path is required"), nil
		}
		imports, err := svc.GetImports(path)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("get imports failed: %v", err)), nil
		}
		return jsonResult(imports)
	}
}

func makeGetDefinitionHandler(svc *tools.Service) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := req.GetString("name", "")
		if name == "" {
			return mcp.NewToolResultError("name is required"), nil
		}
		defs, err := svc.GetDefinition(name)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("get definition failed: %v", err)), nil
		}
		if len(defs) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("No definition found for %q", name)), nil
		}
		return jsonResult(defs)
	}
}

func makeGetReferencesHandler(svc *tools.Service) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := req.GetString("name", "")
		if name == "" {
			return mcp.NewToolResultError("name is required"), nil
		}
		refs, err := svc.GetReferences(name)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("get references failed: %v", err)), nil
		}
		return jsonResult(refs)
	}
}

func makeSearchTextHandler(svc *tools.Service) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		if query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		matches, err := svc.SearchText(query, req.GetInt("limit", 20))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(matches) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("No matches for %q", query)), nil
		}
		return jsonResult(matches)
	}
}

func makeGetStructureHandler(svc *tools.Service) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := req.GetString("path", "")
		if path == "" {
			return mcp.NewToolResultError("path is required"), nil
		}
		structure, err := svc.GetStructure(path)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("get structure failed: %v", err)), nil
		}
		return jsonResult(structure)
	}
}

func makeRetrieveHandler(engine *retrieval.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		if query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		budget := req.GetInt("budget", 8000)
		rc, err := engine.Retrieve(query, budget)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("retrieve failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatContext(query, rc)), nil
	}
}

// --- Formatting helpers ---

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func formatContext(query string, rc retrieval.Context) string {
	if len(rc.Chunks) == 0 {
		return fmt.Sprintf("No results found for query: %q", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Context for %q (%d chunks", query, len(rc.Chunks))
	if rc.Truncated {
		sb.WriteString(", truncated to budget")
	}
	sb.WriteString(")\n\n")

	for i, c := range rc.Chunks {
		fmt.Fprintf(&sb, "### Result %d: `%s` [%s:%d-%d]\n\n",
			i+1, c.FilePath, c.FilePath, c.Chunk.StartLine, c.Chunk.EndLine)
		fmt.Fprintf(&sb, "**Kind:** %s  \n**Name:** %s  \n**Score:** %.2f\n\n",
			c.Chunk.Kind, c.Chunk.Name, c.Score)
		fence := strings.TrimPrefix(filepath.Ext(c.FilePath), ".")
		fmt.Fprintf(&sb, "```%s\n%s\n```\n\n", fence, c.Chunk.Text)
	}
	return sb.String()
}
