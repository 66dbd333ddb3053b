package expertbot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/higress-group/expertbot/metrics"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const defaultMCPAlias = "bss.vip"

// NewMCPServer exposes the expert bot as an MCP tool server.
func NewMCPServer(c *ExpertClient) *server.MCPServer {
	s := server.NewMCPServer(
		c.Config().App.Name,
		Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Expert bot answering accounting and legal questions from a document knowledge base"),
	)
	s.AddTool(
		mcp.NewToolWithRawSchema("ask-expert", "Answer a user question using documents retrieved from the knowledge base for the given alias", GetAskSchema()),
		HandleAsk(c),
	)
	return s
}

// NewStreamableHTTPHandler serves s over the streamable HTTP transport.
func NewStreamableHTTPHandler(s *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(s)
}

func GetAskSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "The user question"
			},
			"alias": {
				"type": "string",
				"description": "Knowledge base alias, for example bss.vip, bss or uss"
			}
		},
		"required": ["query"]
	}`)
}

// HandleAsk answers the ask-expert tool call.
func HandleAsk(c *ExpertClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		query, ok := args["query"].(string)
		if !ok || query == "" {
			metrics.IncRequest("mcp", http.StatusUnprocessableEntity)
			return mcp.NewToolResultError("invalid query argument"), nil
		}
		alias, _ := args["alias"].(string)
		if alias == "" {
			alias = defaultMCPAlias
		}
		reply, err := c.Ask(ctx, query, alias)
		if err != nil {
			metrics.IncRequest("mcp", http.StatusInternalServerError)
			return mcp.NewToolResultError(fmt.Sprintf("answer failed: %v", err)), nil
		}
		if c.IsNoAnswer(reply.Answer) {
			metrics.IncRequest("mcp", http.StatusNotFound)
			return mcp.NewToolResultText("No answer found"), nil
		}
		metrics.IncRequest("mcp", http.StatusOK)
		return mcp.NewToolResultText(reply.Answer), nil
	}
}
