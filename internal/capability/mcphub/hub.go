// Package mcphub imports tools from Model Context Protocol (MCP) servers as
// session capabilities, using the official MCP Go SDK
// (github.com/modelcontextprotocol/go-sdk).
//
// A Hub connects to one or more servers over stdio or streamable-HTTP,
// discovers their tool catalogues, and adapts every discovered tool into a
// [capability.Capability] so the dispatcher treats external tools exactly
// like the built-in set.
//
// Typical usage:
//
//	h := mcphub.New()
//	err := h.RegisterServer(ctx, mcphub.ServerConfig{
//	    Name:      "home",
//	    Transport: mcphub.TransportStdio,
//	    Command:   "/usr/local/bin/mcp-home-server",
//	})
//	caps := h.Capabilities()
//	...
//	h.Close()
package mcphub

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kryptik-dev/omni/internal/capability"
)

// Supported transports.
const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "http"
)

// ServerConfig describes how to connect to a single MCP server.
type ServerConfig struct {
	// Name is the unique identifier for this server, used in logs and errors.
	Name string

	// Transport is either [TransportStdio] or [TransportStreamableHTTP].
	Transport string

	// Command is the executable path plus optional arguments, split on
	// spaces, used when Transport is stdio.
	Command string

	// URL is the endpoint address used when Transport is http.
	URL string

	// Env holds additional environment variables for stdio servers. May be nil.
	Env map[string]string
}

// toolEntry maps a discovered tool back to the server that owns it.
type toolEntry struct {
	def        capability.Definition
	serverName string
}

// serverConn holds a live connection to an external MCP server.
type serverConn struct {
	session *mcpsdk.ClientSession
}

// Hub manages MCP server connections and the tool registry built from them.
// All methods are safe for concurrent use.
//
// The zero value is NOT usable; create instances with [New].
type Hub struct {
	mu      sync.RWMutex
	tools   map[string]toolEntry  // key: tool name
	servers map[string]serverConn // key: server name

	// client is reused across all server connections. The official SDK allows
	// a single Client to manage multiple sessions concurrently.
	client *mcpsdk.Client
}

// New creates and returns a ready-to-use Hub.
func New() *Hub {
	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "omni-mcphub", Version: "1.0.0"},
		nil,
	)
	return &Hub{
		tools:   make(map[string]toolEntry),
		servers: make(map[string]serverConn),
		client:  client,
	}
}

// RegisterServer connects to the MCP server described by cfg and imports its
// tool catalogue. If a server with the same Name is already registered, the
// old connection is closed and replaced.
func (h *Hub) RegisterServer(ctx context.Context, cfg ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("mcphub: server config must have a non-empty name")
	}

	var transport mcpsdk.Transport
	switch cfg.Transport {
	case TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("mcphub: stdio server %q requires a non-empty Command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("mcphub: http server %q requires a non-empty URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}

	default:
		return fmt.Errorf("mcphub: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	session, err := h.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcphub: connect to server %q: %w", cfg.Name, err)
	}

	var discovered []mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("mcphub: list tools for server %q: %w", cfg.Name, err)
		}
		discovered = append(discovered, *tool)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.servers[cfg.Name]; ok {
		_ = old.session.Close()
		for name, t := range h.tools {
			if t.serverName == cfg.Name {
				delete(h.tools, name)
			}
		}
	}

	h.servers[cfg.Name] = serverConn{session: session}
	for _, t := range discovered {
		h.tools[t.Name] = toolEntry{
			def: capability.Definition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schemaToMap(t.InputSchema),
			},
			serverName: cfg.Name,
		}
	}
	return nil
}

// Capabilities returns every discovered tool adapted as a capability, sorted
// by name. Each capability's handler routes the call back to the owning
// server session.
func (h *Hub) Capabilities() []capability.Capability {
	h.mu.RLock()
	entries := make([]toolEntry, 0, len(h.tools))
	for _, e := range h.tools {
		entries = append(entries, e)
	}
	h.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].def.Name < entries[j].def.Name })

	caps := make([]capability.Capability, len(entries))
	for i, e := range entries {
		entry := e
		caps[i] = capability.Capability{
			Definition: entry.def,
			Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				return h.call(ctx, entry, args)
			},
		}
	}
	return caps
}

// call routes a tool invocation to the session owning the tool.
func (h *Hub) call(ctx context.Context, entry toolEntry, args map[string]any) (map[string]any, error) {
	h.mu.RLock()
	conn, ok := h.servers[entry.serverName]
	h.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("server %q not connected for tool %q", entry.serverName, entry.def.Name)
	}

	result, err := conn.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      entry.def.Name,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("call tool %q: %w", entry.def.Name, err)
	}

	var sb strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	if result.IsError {
		return nil, fmt.Errorf("tool %q reported an error: %s", entry.def.Name, sb.String())
	}
	return map[string]any{"content": sb.String()}, nil
}

// Close shuts down all server connections. After Close the Hub must not be
// used again.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	for name, conn := range h.servers {
		if err := conn.session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mcphub: close server %q: %w", name, err)
		}
		delete(h.servers, name)
	}
	h.tools = make(map[string]toolEntry)
	return firstErr
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// splitCommand splits a command string into executable and arguments.
// e.g. "/bin/foo --bar baz" → ("/bin/foo", ["--bar", "baz"]).
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
