package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"genesis/internal/db"
	"genesis/internal/snapshot"
	"genesis/internal/ui"
)

var historyLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect saved sessions",
	Long: `List and print sessions saved with /save.

Subcommands:
  list - List saved session names
  show - Print one session document`,
	RunE: runSessionsList,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved session names",
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a saved session as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent stored conversations",
	RunE:  runHistory,
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	store := snapshot.NewStore(cfg.SessionsDir(), logger)
	names, err := store.List()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(names) == 0 {
		fmt.Fprintf(out, "No saved sessions in %s\n", store.Dir())
		return nil
	}
	for _, name := range names {
		fmt.Fprintln(out, name)
	}
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	store := snapshot.NewStore(cfg.SessionsDir(), logger)
	doc, err := store.Load(args[0])
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	conn, err := db.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("open message store: %w", err)
	}
	defer conn.Close()

	chats, err := db.NewMessageStore(conn).RecentChats(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No stored conversations.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USER\tUPDATED\tMESSAGES\tLAST PROMPT")
	for _, c := range chats {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			c.UserID,
			ui.RelativeTime(time.Unix(c.UpdatedAtUnix, 0)),
			c.Messages,
			ui.TruncateRunes(ui.PromptPreview(c.LastUserPrompt), 60),
		)
	}
	return w.Flush()
}
