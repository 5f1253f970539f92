package app

import (
	"context"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/emmett/sphinxvox/internal/config"
	"github.com/emmett/sphinxvox/internal/server/mcp"
)

// MCPHandler runs the session behind an MCP stdio server
type MCPHandler struct {
	config     *config.Config
	configPath string
	version    string
	gitCommit  string
	logger     *logrus.Logger

	// stderr receives banners; stdout belongs to the protocol
	stderr io.Writer
}

// NewMCPHandler creates a new MCP handler. The logger must not write to stdout.
func NewMCPHandler(cfg *config.Config, configPath, version, gitCommit string, logger *logrus.Logger) *MCPHandler {
	return &MCPHandler{
		config:     cfg,
		configPath: configPath,
		version:    version,
		gitCommit:  gitCommit,
		logger:     logger,
		stderr:     os.Stderr,
	}
}

type mcpServerEntry struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

type mcpClientConfig struct {
	MCPServers map[string]mcpServerEntry `json:"mcpServers"`
}

// ClientConfig returns the JSON snippet an MCP client needs to launch us
func (h *MCPHandler) ClientConfig(execPath string) ([]byte, error) {
	args := []string{"--mode", "mcp"}
	if h.configPath != "" {
		args = append(args, "--config", h.configPath)
	}
	return json.MarshalIndent(mcpClientConfig{
		MCPServers: map[string]mcpServerEntry{
			h.config.Server.MCPName: {Command: execPath, Args: args},
		},
	}, "", "  ")
}

// Run serves MCP requests until ctx ends or the client disconnects
func (h *MCPHandler) Run(ctx context.Context) error {
	fmt.Fprintf(h.stderr, "Starting MCP server...\n")
	fmt.Fprintf(h.stderr, "Protocol: Model Context Protocol (stdio transport)\n")
	fmt.Fprintf(h.stderr, "Version: %s (commit: %s)\n\n", h.version, h.gitCommit)

	execPath, err := os.Executable()
	if err != nil {
		execPath = "./build/sphinxvox"
	}
	if snippet, err := h.ClientConfig(execPath); err == nil {
		fmt.Fprintf(h.stderr, "MCP Client Configuration:\n%s\n\n", snippet)
	}

	rt, err := NewRuntime(ctx, h.config, h.logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	server := mcp.NewServer(mcp.Config{
		ServerName:    h.config.Server.MCPName,
		ServerVersion: h.version,
	}, rt.Service, rt.Models, h.logger)

	fmt.Fprintf(h.stderr, "MCP server ready. Listening on stdin/stdout...\n")

	err = server.Start(ctx)
	rt.Session.Cancel()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
