// Package mcp exposes the recognition session as Model Context Protocol tools.
package mcp

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/emmett/sphinxvox/internal/control"
	"github.com/emmett/sphinxvox/internal/logging"
)

// ModelLister reports locally available models
type ModelLister interface {
	List() ([]string, error)
}

type Config struct {
	ServerName    string
	ServerVersion string
}

type Server struct {
	config    Config
	mcpServer *sdk.Server
	ctrl      control.Controller
	models    ModelLister
	logger    *logrus.Entry
}

// NewServer registers the session tools; models may be nil
func NewServer(cfg Config, ctrl control.Controller, models ModelLister, logger *logrus.Logger) *Server {
	s := &Server{
		config: cfg,
		ctrl:   ctrl,
		models: models,
		logger: logging.OrDiscard(logger).WithField("component", "mcp"),
	}

	s.mcpServer = sdk.NewServer(&sdk.Implementation{
		Name:    cfg.ServerName,
		Version: cfg.ServerVersion,
	}, nil)

	s.registerTools()
	return s
}

// Start serves over stdio until ctx ends or the client disconnects
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("MCP server running on stdio")
	return s.mcpServer.Run(ctx, &sdk.StdioTransport{})
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "start_listening",
		Description: "Start speech recognition on the microphone, optionally switching search and setting a no-speech timeout",
	}, s.handleStartListening)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "stop_listening",
		Description: "Stop recognition and deliver the final result",
	}, s.handleStopListening)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "cancel_listening",
		Description: "Stop recognition and discard pending results",
	}, s.handleCancelListening)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "set_search",
		Description: "Select the named search used by the next recognition",
	}, s.handleSetSearch)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "session_status",
		Description: "Report whether the session is listening and which search is active",
	}, s.handleStatus)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "recent_events",
		Description: "Return the latest recognition events as JSON lines, oldest first",
	}, s.handleRecentEvents)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "list_models",
		Description: "List downloaded recognition models",
	}, s.handleListModels)
}
