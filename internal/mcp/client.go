package mcp

import (
	"context"
	"fmt"
	"os/exec"
	"sort"

	"toolrepro/internal/config"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Implementation identifies toolrepro to MCP servers
var Implementation = &mcp.Implementation{
	Name:    "toolrepro",
	Version: "1.0.0",
}

// Client wraps an MCP client session and the tools it advertised
type Client struct {
	name    string
	session *mcp.ClientSession
	tools   []*mcp.Tool
}

// Connect opens a session over transport and caches the server's tool list
func Connect(ctx context.Context, name string, transport mcp.Transport) (*Client, error) {
	client := mcp.NewClient(Implementation, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MCP server: %w", err)
	}

	var tools []*mcp.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			session.Close()
			return nil, fmt.Errorf("failed to list tools: %w", err)
		}
		tools = append(tools, tool)
	}

	return &Client{
		name:    name,
		session: session,
		tools:   tools,
	}, nil
}

// Start launches the configured command and connects to it over stdio
func Start(ctx context.Context, cfg config.MCPServerConfig) (*Client, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	if env := config.ExpandEnvMap(cfg.Env); len(env) > 0 {
		cmd.Env = append(cmd.Environ(), formatEnvVars(env)...)
	}

	return Connect(ctx, cfg.Name, &mcp.CommandTransport{Command: cmd})
}

// formatEnvVars converts env map to sorted KEY=VALUE pairs
func formatEnvVars(env map[string]string) []string {
	result := make([]string, 0, len(env))
	for key, value := range env {
		result = append(result, fmt.Sprintf("%s=%s", key, value))
	}
	sort.Strings(result)
	return result
}

// Name returns the server name
func (c *Client) Name() string {
	return c.name
}

// Tools returns the cached list of tools
func (c *Client) Tools() []*mcp.Tool {
	return c.tools
}

// CallTool executes a tool with given arguments
func (c *Client) CallTool(ctx context.Context, toolName string, arguments map[string]any) (*mcp.CallToolResult, error) {
	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      toolName,
		Arguments: arguments,
	})
	if err != nil {
		return nil, fmt.Errorf("call tool request failed: %w", err)
	}
	return result, nil
}

// Close shuts down the session
func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}
