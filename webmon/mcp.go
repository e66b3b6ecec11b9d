package webmon

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/changeview/audit"
	"github.com/hazyhaar/changeview/kit"
	"github.com/hazyhaar/changeview/page"
)

// RegisterMCP registers the changeview tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerListPagesTool(srv)
	s.registerGetPageTool(srv)
	s.registerResolveTool(srv)
	s.registerAnnotateTool(srv)
	s.registerCaptureTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (s *Service) addTool(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	mw := kit.Chain(kit.Logging(s.logger, tool.Name), audit.Middleware(s.audit, tool.Name))
	kit.RegisterMCPTool(srv, tool, mw(endpoint), decode)
}

var pageIDProp = map[string]any{"type": "string", "description": "Page UUID"}

// --- list pages ---

func (s *Service) registerListPagesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "changeview_list_pages",
		Description: "List monitored pages, ordered by title.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return s.ListPages(ctx)
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	s.addTool(srv, tool, endpoint, decode)
}

// --- get page ---

type getPageReq struct {
	PageID string `json:"page_id"`
}

func (s *Service) registerGetPageTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "changeview_get_page",
		Description: "Get a monitored page with its captured versions, most recent first.",
		InputSchema: inputSchema(map[string]any{
			"page_id": pageIDProp,
		}, []string{"page_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*getPageReq)
		return s.GetPage(ctx, r.PageID)
	}

	s.addTool(srv, tool, endpoint, kit.DecodeArgs[getPageReq])
}

// --- resolve change ---

type resolveReq struct {
	PageID string `json:"page_id"`
	Token  string `json:"token"`
}

func (s *Service) registerResolveTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "changeview_resolve_change",
		Description: "Resolve a change token (\"<from>..<to>\", possibly partial or empty) against a page history. Returns the pair to compare, or the corrected token.",
		InputSchema: inputSchema(map[string]any{
			"page_id": pageIDProp,
			"token":   map[string]any{"type": "string", "description": "Change token, may be empty"},
		}, []string{"page_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*resolveReq)
		return s.ResolveChange(ctx, r.PageID, r.Token)
	}

	s.addTool(srv, tool, endpoint, kit.DecodeArgs[resolveReq])
}

// --- annotate change ---

type annotateReq struct {
	PageID       string   `json:"page_id"`
	FromID       string   `json:"from_id"`
	ToID         string   `json:"to_id"`
	Author       string   `json:"author"`
	Notes        string   `json:"notes"`
	Significance float64  `json:"significance"`
	Labels       []string `json:"labels"`
}

func (s *Service) registerAnnotateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "changeview_annotate_change",
		Description: "Attach a note to the change between two versions of a page.",
		InputSchema: inputSchema(map[string]any{
			"page_id":      pageIDProp,
			"from_id":      map[string]any{"type": "string", "description": "Older version UUID"},
			"to_id":        map[string]any{"type": "string", "description": "Newer version UUID"},
			"author":       map[string]any{"type": "string"},
			"notes":        map[string]any{"type": "string"},
			"significance": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"labels":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		}, []string{"page_id", "from_id", "to_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*annotateReq)
		return s.AnnotateChange(ctx, r.PageID, r.FromID, r.ToID, page.Annotation{
			Author:       r.Author,
			Notes:        r.Notes,
			Significance: r.Significance,
			Labels:       r.Labels,
		})
	}

	s.addTool(srv, tool, endpoint, kit.DecodeArgs[annotateReq])
}

// --- capture ---

func (s *Service) registerCaptureTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "changeview_capture",
		Description: "Capture a page now. A version is recorded only if the content changed since the latest one.",
		InputSchema: inputSchema(map[string]any{
			"page_id": pageIDProp,
		}, []string{"page_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*getPageReq)
		return s.Capture(ctx, r.PageID)
	}

	s.addTool(srv, tool, endpoint, kit.DecodeArgs[getPageReq])
}
