// Package mcp binds tools served over the Model Context Protocol next to the
// built-in get_weather tool, so a scenario can offer the model a realistic
// tool list.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"toolrepro/internal/tool"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolAdapter exposes one MCP tool through the tool.Tool interface
type ToolAdapter struct {
	client *Client
	remote *mcp.Tool
	name   string // server_tool
}

func NewToolAdapter(client *Client, remote *mcp.Tool) *ToolAdapter {
	return &ToolAdapter{
		client: client,
		remote: remote,
		name:   fmt.Sprintf("%s_%s", client.Name(), remote.Name),
	}
}

func (a *ToolAdapter) Name() string {
	return a.name
}

func (a *ToolAdapter) Description() string {
	if a.remote.Description == "" {
		return fmt.Sprintf("MCP tool %s from the %s server", a.remote.Name, a.client.Name())
	}
	return a.remote.Description
}

// Parameters returns the remote input schema as a plain map
func (a *ToolAdapter) Parameters() map[string]any {
	if schema, ok := a.remote.InputSchema.(map[string]any); ok {
		return schema
	}

	empty := map[string]any{"type": "object", "properties": map[string]any{}}
	if a.remote.InputSchema == nil {
		return empty
	}

	data, err := json.Marshal(a.remote.InputSchema)
	if err != nil {
		return empty
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		return empty
	}
	return schema
}

func (a *ToolAdapter) Execute(ctx context.Context, params json.RawMessage) (*tool.Result, error) {
	var args map[string]any
	if err := json.Unmarshal(params, &args); err != nil {
		return &tool.Result{
			Success: false,
			Error:   fmt.Sprintf("invalid parameters: %v", err),
		}, nil
	}

	result, err := a.client.CallTool(ctx, a.remote.Name, args)
	if err != nil {
		return &tool.Result{
			Success: false,
			Error:   fmt.Sprintf("MCP tool execution failed: %v", err),
		}, nil
	}

	if result.IsError {
		msg := formatContent(result.Content)
		if msg == "" {
			msg = "MCP tool returned an error"
		}
		return &tool.Result{Success: false, Error: msg}, nil
	}

	return &tool.Result{
		Success: true,
		Output:  formatContent(result.Content),
		Data: map[string]any{
			"mcp_server": a.client.Name(),
			"mcp_tool":   a.remote.Name,
		},
	}, nil
}

// formatContent flattens MCP content into text, one item per line
func formatContent(content []mcp.Content) string {
	var parts []string

	for _, item := range content {
		switch c := item.(type) {
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[Image: %s]", c.MIMEType))
		case *mcp.AudioContent:
			parts = append(parts, fmt.Sprintf("[Audio: %s]", c.MIMEType))
		default:
			data, err := json.Marshal(item)
			if err != nil {
				parts = append(parts, fmt.Sprintf("[Unknown content type: %T]", item))
				continue
			}
			parts = append(parts, string(data))
		}
	}

	return strings.Join(parts, "\n")
}
