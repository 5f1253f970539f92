package mcp

import (
	"context"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type StartListeningArgs struct {
	Search    string `json:"search,omitempty" jsonschema:"Search to switch to before listening. Empty keeps the current one."`
	TimeoutMs int    `json:"timeout_ms,omitempty" jsonschema:"No-speech timeout in milliseconds. Zero or less disables it."`
}

type SetSearchArgs struct {
	Search string `json:"search" jsonschema:"Name of an installed search"`
}

type RecentEventsArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of events. Zero returns all that are kept."`
}

type NoArgs struct{}

func textResult(text string) *sdk.CallToolResult {
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: text}},
	}
}

func errorResult(err error) *sdk.CallToolResult {
	res := textResult(err.Error())
	res.IsError = true
	return res
}

func (s *Server) handleStartListening(ctx context.Context, req *sdk.CallToolRequest, args StartListeningArgs) (*sdk.CallToolResult, any, error) {
	started, err := s.ctrl.StartListening(args.Search, args.TimeoutMs)
	if err != nil {
		return errorResult(err), nil, nil
	}
	if !started {
		return textResult("Already listening"), nil, nil
	}
	return textResult(fmt.Sprintf("Listening with search %q", s.ctrl.Status().Search)), nil, nil
}

func (s *Server) handleStopListening(ctx context.Context, req *sdk.CallToolRequest, args NoArgs) (*sdk.CallToolResult, any, error) {
	if !s.ctrl.Stop() {
		return textResult("Not listening"), nil, nil
	}
	return textResult("Stopped"), nil, nil
}

func (s *Server) handleCancelListening(ctx context.Context, req *sdk.CallToolRequest, args NoArgs) (*sdk.CallToolResult, any, error) {
	if !s.ctrl.Cancel() {
		return textResult("Not listening"), nil, nil
	}
	return textResult("Cancelled"), nil, nil
}

func (s *Server) handleSetSearch(ctx context.Context, req *sdk.CallToolRequest, args SetSearchArgs) (*sdk.CallToolResult, any, error) {
	if args.Search == "" {
		return errorResult(fmt.Errorf("search is required")), nil, nil
	}
	if err := s.ctrl.SetSearch(args.Search); err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(fmt.Sprintf("Search set to %q", args.Search)), nil, nil
}

func (s *Server) handleStatus(ctx context.Context, req *sdk.CallToolRequest, args NoArgs) (*sdk.CallToolResult, any, error) {
	data, err := json.Marshal(s.ctrl.Status())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode status: %w", err)
	}
	return textResult(string(data)), nil, nil
}

func (s *Server) handleRecentEvents(ctx context.Context, req *sdk.CallToolRequest, args RecentEventsArgs) (*sdk.CallToolResult, any, error) {
	events := s.ctrl.Recent(args.Limit)
	if len(events) == 0 {
		return textResult("No events yet"), nil, nil
	}

	lines := make([]string, 0, len(events))
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode event: %w", err)
		}
		lines = append(lines, string(data))
	}
	return textResult(strings.Join(lines, "\n")), nil, nil
}

func (s *Server) handleListModels(ctx context.Context, req *sdk.CallToolRequest, args NoArgs) (*sdk.CallToolResult, any, error) {
	if s.models == nil {
		return textResult("No model directory configured"), nil, nil
	}

	downloaded, err := s.models.List()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list models: %w", err)
	}

	content := []sdk.Content{
		&sdk.TextContent{Text: fmt.Sprintf("Downloaded models (%d):", len(downloaded))},
	}
	for _, model := range downloaded {
		content = append(content, &sdk.TextContent{Text: fmt.Sprintf("- %s", model)})
	}
	return &sdk.CallToolResult{Content: content}, nil, nil
}
