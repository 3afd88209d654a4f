// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/wren/internal/server"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "journal",
		Aliases: []string{"journals"},
		Short:   "Write journal entries and ask Eve to reply",
	}
	addClientFlags(cmd)

	cmd.AddCommand(
		newJournalWriteCmd(),
		newJournalListCmd(),
		newJournalShowCmd(),
		newJournalReplyCmd(),
		newJournalDeleteCmd(),
	)

	return cmd
}

func newJournalWriteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Write a journal entry",
		Long:  "Write a journal entry from --content, a file, or standard input.",
		RunE:  runJournalWrite,
	}
	cmd.Flags().String("title", "", "entry title")
	cmd.Flags().String("content", "", "entry text")
	cmd.Flags().StringP("file", "f", "", "read the entry text from a file")
	cmd.Flags().StringSlice("tag", nil, "tag the entry (repeatable)")
	cmd.MarkFlagsMutuallyExclusive("content", "file")
	return cmd
}

func newJournalListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journal entries",
		RunE:  runJournalList,
	}
	cmd.Flags().Int("limit", 20, "maximum number of entries, 0 for all")
	return cmd
}

func newJournalShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <journal-id>",
		Short: "Print a journal entry and Eve's replies",
		Args:  cobra.ExactArgs(1),
		RunE:  runJournalShow,
	}
}

func newJournalReplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reply <journal-id>",
		Short: "Ask Eve to reply to a journal entry",
		Args:  cobra.ExactArgs(1),
		RunE:  runJournalReply,
	}
	cmd.Flags().StringP("out", "o", "", "write the spoken reply to this file")
	return cmd
}

func newJournalDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <journal-id>",
		Short: "Delete a journal entry",
		Args:  cobra.ExactArgs(1),
		RunE:  runJournalDelete,
	}
}

func runJournalWrite(cmd *cobra.Command, _ []string) error {
	title, _ := cmd.Flags().GetString("title")
	tags, _ := cmd.Flags().GetStringSlice("tag")

	content, err := journalContent(cmd)
	if err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return wrenerr.New(wrenerr.CodeCLIInputInvalid, "journal entry is empty")
	}

	var j server.JournalBody
	if err := newAPIClient(cmd).do(cmd.Context(), http.MethodPost, "/api/v1/journals", map[string]any{
		"title":   title,
		"content": content,
		"tags":    tags,
	}, &j); err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), j.ID)
	return err
}

func journalContent(cmd *cobra.Command) (string, error) {
	if cmd.Flags().Changed("content") {
		content, _ := cmd.Flags().GetString("content")
		return content, nil
	}
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", wrenerr.Errorf(wrenerr.CodeCLIInputInvalid, "reading %s: %w", path, err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", wrenerr.Errorf(wrenerr.CodeCLIInputInvalid, "reading stdin: %w", err)
	}
	return string(data), nil
}

func runJournalList(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	var body struct {
		Journals []server.JournalBody `json:"journals"`
	}
	if err := newAPIClient(cmd).do(cmd.Context(), http.MethodGet,
		"/api/v1/journals?limit="+strconv.Itoa(limit), nil, &body); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(body.Journals) == 0 {
		_, _ = fmt.Fprintln(out, "No journal entries found")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tKIND\tUPDATED\tTITLE")
	for _, j := range body.Journals {
		title := j.Title
		if title == "" {
			title = truncate(firstLine(j.Content), 40)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", j.ID, j.Kind, j.UpdatedAt.Local().Format("2006-01-02 15:04"), title)
	}
	return tw.Flush()
}

func runJournalShow(cmd *cobra.Command, args []string) error {
	client := newAPIClient(cmd)
	path := "/api/v1/journals/" + url.PathEscape(args[0])

	var j server.JournalBody
	if err := client.do(cmd.Context(), http.MethodGet, path, nil, &j); err != nil {
		return err
	}
	var replies struct {
		Messages []server.MessageBody `json:"messages"`
	}
	if err := client.do(cmd.Context(), http.MethodGet, path+"/replies", nil, &replies); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if j.Title != "" {
		_, _ = fmt.Fprintf(out, "# %s\n\n", j.Title)
	}
	_, _ = fmt.Fprintln(out, strings.TrimSpace(j.Content))
	if len(j.Tags) > 0 {
		_, _ = fmt.Fprintf(out, "\nTags: %s\n", strings.Join(j.Tags, ", "))
	}
	for _, m := range replies.Messages {
		_, _ = fmt.Fprintf(out, "\nEve: %s\n", m.Text)
	}
	return nil
}

func runJournalReply(cmd *cobra.Command, args []string) error {
	client := newAPIClient(cmd)

	var turn server.TurnBody
	if err := client.do(cmd.Context(), http.MethodPost,
		"/api/v1/journals/"+url.PathEscape(args[0])+"/reply", nil, &turn); err != nil {
		return err
	}
	printTurn(cmd.OutOrStdout(), turn)

	outPath, _ := cmd.Flags().GetString("out")
	if outPath == "" || turn.AgentMessage.AudioLocator == "" {
		return nil
	}
	return saveAudio(cmd, client, turn.AgentMessage.AudioLocator, outPath)
}

func runJournalDelete(cmd *cobra.Command, args []string) error {
	if err := newAPIClient(cmd).do(cmd.Context(), http.MethodDelete,
		"/api/v1/journals/"+url.PathEscape(args[0]), nil, nil); err != nil {
		return err
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted journal %s\n", args[0])
	return err
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
