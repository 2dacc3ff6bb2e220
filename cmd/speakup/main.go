// Package main provides the speakup command line client. It talks to a
// running speakupd over the loopback HTTP API.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/speakuplabs/speakupd/internal/client"
	"github.com/speakuplabs/speakupd/internal/mcptool"
)

var version = "0.1.0-dev"

var (
	daemonURL string

	project   string
	toneName  string
	speed     float64
	interrupt bool
	announce  string

	historyLimit int

	rootCmd = &cobra.Command{
		Use:           "speakup",
		Short:         "Send text-to-speech requests to a running speakupd",
		SilenceUsage:  true,
		SilenceErrors: false,
		Version:       version,
	}

	speakCmd = &cobra.Command{
		Use:   "speak [text]",
		Short: "Queue text for speech",
		Args:  cobra.MinimumNArgs(0),
		RunE:  runSpeak,
	}

	stopCmd = &cobra.Command{
		Use:   "stop",
		Short: "Stop current speech and clear the queue",
		Args:  cobra.NoArgs,
		RunE:  runStop,
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show what is playing and what is queued",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show recent messages, newest first",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	mcpCmd = &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP tools over stdio, forwarding to the daemon",
		Args:  cobra.NoArgs,
		RunE:  runMCP,
	}
)

func main() {
	rootCmd.PersistentFlags().StringVar(&daemonURL, "url", "http://127.0.0.1:7849", "Base URL of the speakupd daemon")

	speakCmd.Flags().StringVar(&project, "project", "", "Project name to announce")
	speakCmd.Flags().StringVar(&toneName, "tone", "", "Voice tone (neutral, excited, concerned, calm, urgent)")
	speakCmd.Flags().Float64Var(&speed, "speed", 0, "Speech speed, 0.5-2.0")
	speakCmd.Flags().BoolVar(&interrupt, "interrupt", false, "Cancel current playback and speak this next")
	speakCmd.Flags().StringVar(&announce, "announce", "", "Announce mode (prefix, full, none)")

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of records to show")

	rootCmd.AddCommand(speakCmd, stopCmd, statusCmd, historyCmd, mcpCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runSpeak reads text from the arguments, or from stdin when piped, so both
// `speakup speak "done"` and `make 2>&1 | tail -1 | speakup speak` work.
func runSpeak(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if text == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = strings.TrimSpace(string(data))
	}

	c := client.New(daemonURL)
	res, err := c.Speak(cmd.Context(), client.SpeakRequest{
		Text:      text,
		Project:   project,
		Tone:      toneName,
		Speed:     speed,
		Interrupt: interrupt,
		Announce:  announce,
	})
	if err != nil {
		return err
	}
	fmt.Printf("queued message %d at position %d\n", res.MessageID, res.QueuePosition)
	return nil
}

func runStop(cmd *cobra.Command, _ []string) error {
	c := client.New(daemonURL)
	res, err := c.Stop(cmd.Context())
	if err != nil {
		return err
	}
	if res.StoppedCurrent {
		fmt.Println("stopped current playback")
	}
	fmt.Printf("cleared %d queued messages\n", len(res.Cleared))
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	c := client.New(daemonURL)
	st, err := c.Status(cmd.Context())
	if err != nil {
		return err
	}
	if st.Playing != nil {
		fmt.Printf("playing #%d: %s\n", st.Playing.ID, st.Playing.Text)
	} else {
		fmt.Println("nothing playing")
	}
	if st.QueueLength == 0 {
		fmt.Println("queue empty")
		return nil
	}
	fmt.Printf("%d queued:\n", st.QueueLength)
	for i, m := range st.Queue {
		fmt.Printf("  %d. #%d %s\n", i+1, m.ID, m.Text)
	}
	return nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	c := client.New(daemonURL)
	records, err := c.History(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no history")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tPROJECT\tSTATUS\tTEXT")
	for _, r := range records {
		text := r.Text
		if len(text) > 60 {
			text = text[:57] + "..."
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			r.ID, r.SubmittedAt.Local().Format(time.Kitchen), r.Project, r.Status, text)
	}
	return w.Flush()
}

// runMCP logs to stderr so stdout stays clean for the MCP protocol.
func runMCP(cmd *cobra.Command, _ []string) error {
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	srv := mcptool.NewServer(client.New(daemonURL), version, log)
	return srv.Run(cmd.Context())
}
