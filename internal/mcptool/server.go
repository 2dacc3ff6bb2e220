// Package mcptool exposes the daemon's speak/stop/status operations as MCP
// tools over stdio, so agent frameworks can drive speech without knowing the
// HTTP API. Each tool call is forwarded to a running daemon; the MCP process
// itself owns no state.
package mcptool

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/speakuplabs/speakupd/internal/client"
	"github.com/speakuplabs/speakupd/internal/tone"
)

type speakInput struct {
	Text      string  `json:"text" jsonschema:"the text to speak aloud"`
	Project   string  `json:"project,omitempty" jsonschema:"project name announced before the text"`
	Tone      string  `json:"tone,omitempty" jsonschema:"voice tone: neutral, excited, concerned, calm or urgent"`
	Speed     float64 `json:"speed,omitempty" jsonschema:"speech speed between 0.5 and 2.0"`
	Interrupt bool    `json:"interrupt,omitempty" jsonschema:"cancel current playback and speak this next"`
	Announce  string  `json:"announce,omitempty" jsonschema:"announce mode: prefix, full or none"`
}

type speakOutput struct {
	MessageID     int64 `json:"message_id"`
	QueuePosition int   `json:"queue_position"`
}

type stopInput struct{}

type stopOutput struct {
	StoppedCurrent bool `json:"stopped_current"`
	Cleared        int  `json:"cleared"`
}

type statusInput struct{}

type statusOutput struct {
	Playing     string `json:"playing"`
	QueueLength int    `json:"queue_length"`
}

// Server bridges MCP tool calls to the daemon's HTTP API.
type Server struct {
	daemon  *client.Client
	log     *slog.Logger
	version string
}

func NewServer(daemon *client.Client, version string, log *slog.Logger) *Server {
	return &Server{
		daemon:  daemon,
		log:     log.With(slog.String("component", "mcp")),
		version: version,
	}
}

// Run serves MCP over stdio until the peer disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "speakup",
		Version: s.version,
	}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name: "speak",
		Description: fmt.Sprintf(
			"Speak text aloud through the local audio output. Available tones: %s.",
			strings.Join(toneNames(), ", ")),
	}, s.handleSpeak)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "stop",
		Description: "Stop current speech and clear all queued messages.",
	}, s.handleStop)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "speech_status",
		Description: "Report what is currently being spoken and how many messages are queued.",
	}, s.handleStatus)

	s.log.Info("mcp server listening on stdio")
	return srv.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) handleSpeak(ctx context.Context, req *mcp.CallToolRequest, in speakInput) (*mcp.CallToolResult, speakOutput, error) {
	res, err := s.daemon.Speak(ctx, client.SpeakRequest{
		Text:      in.Text,
		Project:   in.Project,
		Tone:      in.Tone,
		Speed:     in.Speed,
		Interrupt: in.Interrupt,
		Announce:  in.Announce,
	})
	if err != nil {
		return nil, speakOutput{}, err
	}
	return textResult(fmt.Sprintf("queued message %d at position %d", res.MessageID, res.QueuePosition)),
		speakOutput{MessageID: res.MessageID, QueuePosition: res.QueuePosition}, nil
}

func (s *Server) handleStop(ctx context.Context, req *mcp.CallToolRequest, _ stopInput) (*mcp.CallToolResult, stopOutput, error) {
	res, err := s.daemon.Stop(ctx)
	if err != nil {
		return nil, stopOutput{}, err
	}
	return textResult(fmt.Sprintf("stopped playback, cleared %d queued messages", len(res.Cleared))),
		stopOutput{StoppedCurrent: res.StoppedCurrent, Cleared: len(res.Cleared)}, nil
}

func (s *Server) handleStatus(ctx context.Context, req *mcp.CallToolRequest, _ statusInput) (*mcp.CallToolResult, statusOutput, error) {
	st, err := s.daemon.Status(ctx)
	if err != nil {
		return nil, statusOutput{}, err
	}
	out := statusOutput{QueueLength: st.QueueLength}
	summary := "nothing is playing"
	if st.Playing != nil {
		out.Playing = st.Playing.Text
		summary = fmt.Sprintf("playing %q", st.Playing.Text)
	}
	if st.QueueLength > 0 {
		summary += fmt.Sprintf(", %d queued", st.QueueLength)
	}
	return textResult(summary), out, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toneNames() []string {
	tones := tone.Available()
	names := make([]string, len(tones))
	for i, t := range tones {
		names[i] = string(t)
	}
	return names
}
