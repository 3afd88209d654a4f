// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/wren/internal/audio"
	"github.com/sigil-dev/wren/internal/server"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Talk with Eve in sessions",
		Long:  "Start sessions, send turns as recordings or text, and end sessions with an optional summary.",
	}
	addClientFlags(cmd)

	cmd.AddCommand(
		newSessionStartCmd(),
		newSessionTurnCmd(),
		newSessionEndCmd(),
		newSessionListCmd(),
		newSessionShowCmd(),
	)

	return cmd
}

func newSessionStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a session",
		RunE:  runSessionStart,
	}
	cmd.Flags().StringP("prompt", "p", "", "system prompt for the agent (required)")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

func newSessionTurnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "turn <session-id>",
		Short: "Send one turn and print the reply",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessionTurn,
	}
	cmd.Flags().StringP("audio", "a", "", "recording to send (wav, mp3, ogg, webm, m4a, flac)")
	cmd.Flags().StringP("text", "t", "", "typed input instead of a recording")
	cmd.Flags().StringP("out", "o", "", "write the spoken reply to this file")
	cmd.MarkFlagsMutuallyExclusive("audio", "text")
	cmd.MarkFlagsOneRequired("audio", "text")
	return cmd
}

func newSessionEndCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "end <session-id>",
		Short: "End a session",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessionEnd,
	}
	cmd.Flags().Bool("summarize", true, "generate a summary and notes")
	return cmd
}

func newSessionListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE:  runSessionList,
	}
	cmd.Flags().Int("limit", 20, "maximum number of sessions, 0 for all")
	return cmd
}

func newSessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print the transcript of a session",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessionShow,
	}
}

func runSessionStart(cmd *cobra.Command, _ []string) error {
	prompt, _ := cmd.Flags().GetString("prompt")

	var sess server.SessionBody
	if err := newAPIClient(cmd).do(cmd.Context(), http.MethodPost, "/api/v1/sessions",
		map[string]string{"system_prompt": prompt}, &sess); err != nil {
		return err
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), sess.ID)
	return err
}

func runSessionTurn(cmd *cobra.Command, args []string) error {
	body := map[string]any{}
	if path, _ := cmd.Flags().GetString("audio"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return wrenerr.Errorf(wrenerr.CodeCLIInputInvalid, "reading recording: %w", err)
		}
		mimeType := audio.MIMETypeFor(strings.ToLower(filepath.Ext(path)))
		if mimeType == "application/octet-stream" {
			return wrenerr.Errorf(wrenerr.CodeCLIInputInvalid, "unsupported recording format %q", filepath.Ext(path))
		}
		body["audio"] = data
		body["mime_type"] = mimeType
	} else {
		text, _ := cmd.Flags().GetString("text")
		body["text"] = text
	}

	client := newAPIClient(cmd)
	var turn server.TurnBody
	if err := client.do(cmd.Context(), http.MethodPost, "/api/v1/sessions/"+url.PathEscape(args[0])+"/turns", body, &turn); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printTurn(out, turn)

	outPath, _ := cmd.Flags().GetString("out")
	if outPath == "" || turn.AgentMessage.AudioLocator == "" {
		return nil
	}
	return saveAudio(cmd, client, turn.AgentMessage.AudioLocator, outPath)
}

func printTurn(out io.Writer, turn server.TurnBody) {
	if turn.UserMessage != nil {
		_, _ = fmt.Fprintf(out, "You: %s\n", turn.UserMessage.Text)
	}
	_, _ = fmt.Fprintf(out, "Eve: %s\n", turn.AgentMessage.Text)
	if turn.SynthesisDegraded {
		_, _ = fmt.Fprintln(out, "(reply has no audio: speech synthesis failed)")
	}
}

func saveAudio(cmd *cobra.Command, client *apiClient, locator, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return wrenerr.Errorf(wrenerr.CodeCLIInputInvalid, "creating %s: %w", path, err)
	}
	if err := client.download(cmd.Context(), "/api/v1/audio/"+url.PathEscape(locator), f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return wrenerr.Errorf(wrenerr.CodeCLIRequest, "writing %s: %w", path, err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Saved reply audio to %s\n", path)
	return nil
}

func runSessionEnd(cmd *cobra.Command, args []string) error {
	summarize, _ := cmd.Flags().GetBool("summarize")

	var end server.EndBody
	if err := newAPIClient(cmd).do(cmd.Context(), http.MethodPost, "/api/v1/sessions/"+url.PathEscape(args[0])+"/end",
		map[string]bool{"summarize": summarize}, &end); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Session %s ended\n", end.Session.ID)
	if end.SummarizationDegraded {
		_, _ = fmt.Fprintln(out, "(summary unavailable: generation failed)")
	}
	if end.Summary != "" {
		_, _ = fmt.Fprintf(out, "\nSummary:\n%s\n", end.Summary)
	}
	if len(end.Notes) > 0 {
		_, _ = fmt.Fprintln(out, "\nNotes:")
		for _, n := range end.Notes {
			_, _ = fmt.Fprintf(out, "- %s\n", n)
		}
		_, _ = fmt.Fprintf(out, "\nSaved as journal %s\n", end.NotesJournalID)
	}
	return nil
}

func runSessionList(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	var body struct {
		Sessions []server.SessionBody `json:"sessions"`
	}
	if err := newAPIClient(cmd).do(cmd.Context(), http.MethodGet,
		"/api/v1/sessions?limit="+strconv.Itoa(limit), nil, &body); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(body.Sessions) == 0 {
		_, _ = fmt.Fprintln(out, "No sessions found")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tPROMPT")
	for _, s := range body.Sessions {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Status, s.CreatedAt.Local().Format("2006-01-02 15:04"), truncate(s.SystemPrompt, 40))
	}
	return tw.Flush()
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	var body struct {
		Messages []server.MessageBody `json:"messages"`
	}
	if err := newAPIClient(cmd).do(cmd.Context(), http.MethodGet,
		"/api/v1/sessions/"+url.PathEscape(args[0])+"/messages", nil, &body); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(body.Messages) == 0 {
		_, _ = fmt.Fprintln(out, "No messages yet")
		return nil
	}
	for _, m := range body.Messages {
		speaker := "You"
		if m.Role == "agent" {
			speaker = "Eve"
		}
		_, _ = fmt.Fprintf(out, "%s: %s\n", speaker, m.Text)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
