package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"toolrepro/internal/config"
	"toolrepro/internal/logger"
	"toolrepro/internal/tool"
)

// Manager starts the configured MCP servers and registers their tools
type Manager struct {
	clients  map[string]*Client
	registry *tool.Registry
	log      *logger.Logger
	mu       sync.RWMutex
}

func NewManager(registry *tool.Registry, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Discard()
	}
	return &Manager{
		clients:  make(map[string]*Client),
		registry: registry,
		log:      log,
	}
}

// Initialize starts every enabled server concurrently. Servers that fail are
// logged and skipped; an error is returned only when all of them fail.
func (m *Manager) Initialize(ctx context.Context, cfg config.MCPConfig) error {
	var enabled []config.MCPServerConfig
	for _, server := range cfg.Servers {
		if !server.Disabled {
			enabled = append(enabled, server)
		}
	}
	if len(enabled) == 0 {
		return nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, serverCfg := range enabled {
		wg.Add(1)
		go func(cfg config.MCPServerConfig) {
			defer wg.Done()

			client, err := Start(ctx, cfg)
			if err == nil {
				err = m.Add(client)
			}
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("server %s: %w", cfg.Name, err))
				mu.Unlock()
			}
		}(serverCfg)
	}
	wg.Wait()

	if len(errs) == len(enabled) {
		return fmt.Errorf("all MCP servers failed to initialize: %w", errors.Join(errs...))
	}
	for _, err := range errs {
		m.log.Warn("MCP %v", err)
	}
	return nil
}

// Add registers every tool of a connected client. On a name clash the client
// is closed and nothing from it stays registered.
func (m *Manager) Add(client *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.clients[client.Name()]; exists {
		client.Close()
		return fmt.Errorf("duplicate server name: %s", client.Name())
	}

	adapters := make([]*ToolAdapter, 0, len(client.Tools()))
	for _, remote := range client.Tools() {
		adapters = append(adapters, NewToolAdapter(client, remote))
	}

	for i, adapter := range adapters {
		if err := m.registry.Register(adapter); err != nil {
			for _, registered := range adapters[:i] {
				m.registry.Unregister(registered.Name())
			}
			client.Close()
			return fmt.Errorf("failed to register tool %s: %w", adapter.Name(), err)
		}
	}

	m.clients[client.Name()] = client
	m.log.Info("MCP server %s: %d tool(s) bound", client.Name(), len(adapters))
	return nil
}

// Close shuts down all sessions
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, client := range m.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("server %s: %w", name, err))
		}
	}
	m.clients = make(map[string]*Client)

	return errors.Join(errs...)
}

// Servers returns the connected server names, sorted
func (m *Manager) Servers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
