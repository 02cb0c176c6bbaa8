package brand

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/guildbrand/catalog"
	"github.com/hazyhaar/guildbrand/kit"
)

// RegisterMCP registers the guildbrand tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerStatsTool(srv)
	s.registerRefreshCatalogTool(srv)
	s.registerListGuildsTool(srv)
	s.registerListRunsTool(srv)
	s.registerRandomizeTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	sch := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sch["required"] = required
	}
	return sch
}

func (s *Service) endpoint(name string, e kit.Endpoint) kit.Endpoint {
	return kit.Logging(s.logger, name)(e)
}

type emptyRequest struct{}

func (s *Service) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "guildbrand_stats",
		Description: "Catalog pool sizes and origins, refresh counters, registered guilds and run counts by status.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	kit.RegisterMCPTool(srv, tool, s.endpoint(tool.Name, func(ctx context.Context, _ any) (any, error) {
		return s.Stats(ctx)
	}), kit.DecodeJSON[emptyRequest]())
}

func (s *Service) registerRefreshCatalogTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "guildbrand_refresh_catalog",
		Description: "Reload the promotional photo catalog and logo from the CMS now. On failure the previous catalog is kept.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	kit.RegisterMCPTool(srv, tool, s.endpoint(tool.Name, func(ctx context.Context, _ any) (any, error) {
		if err := s.RefreshCatalog(ctx); err != nil {
			return nil, err
		}
		return s.CatalogStats(), nil
	}), kit.DecodeJSON[emptyRequest]())
}

type listGuildsRequest struct {
	All bool `json:"all,omitempty"`
}

func (s *Service) registerListGuildsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "guildbrand_list_guilds",
		Description: "List guilds known to the bot with their last automatic update day.",
		InputSchema: inputSchema(map[string]any{
			"all": map[string]any{"type": "boolean", "description": "Include guilds the bot has left"},
		}, nil),
	}
	kit.RegisterMCPTool(srv, tool, s.endpoint(tool.Name, func(ctx context.Context, req any) (any, error) {
		r := req.(*listGuildsRequest)
		return s.ListGuilds(ctx, !r.All)
	}), kit.DecodeJSON[listGuildsRequest]())
}

type listRunsRequest struct {
	GuildID string `json:"guild_id,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

func (s *Service) registerListRunsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "guildbrand_list_runs",
		Description: "List recent icon and banner runs, newest first.",
		InputSchema: inputSchema(map[string]any{
			"guild_id": map[string]any{"type": "string", "description": "Restrict to one guild"},
			"limit":    map[string]any{"type": "integer", "description": "Max results (default 50)"},
		}, nil),
	}
	kit.RegisterMCPTool(srv, tool, s.endpoint(tool.Name, func(ctx context.Context, req any) (any, error) {
		r := req.(*listRunsRequest)
		return s.ListRuns(ctx, r.GuildID, r.Limit)
	}), kit.DecodeJSON[listRunsRequest]())
}

type randomizeRequest struct {
	GuildID string `json:"guild_id"`
	Kind    string `json:"kind"`
}

func (s *Service) registerRandomizeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "guildbrand_randomize",
		Description: "Pick new random photos for a guild and push a new icon (animated, with logo) or banner now.",
		InputSchema: inputSchema(map[string]any{
			"guild_id": map[string]any{"type": "string", "description": "Guild ID"},
			"kind":     map[string]any{"type": "string", "enum": []any{"icon", "banner"}, "description": "What to replace"},
		}, []string{"guild_id", "kind"}),
	}
	kit.RegisterMCPTool(srv, tool, s.endpoint(tool.Name, func(ctx context.Context, req any) (any, error) {
		r := req.(*randomizeRequest)
		size, err := catalog.ParseSizeClass(r.Kind)
		if err != nil {
			return nil, err
		}
		return s.Randomize(ctx, r.GuildID, size, TriggerMCP)
	}), kit.DecodeJSON[randomizeRequest]())
}
