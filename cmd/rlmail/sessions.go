package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rlmail/rlmail/internal/session"
)

func newSessionsCommand(verbose, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage saved analysis sessions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved sessions, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := session.NewStore("", newLogger(*verbose, *jsonOutput))
			if err != nil {
				return err
			}
			records := store.List()
			if *jsonOutput {
				data, err := json.MarshalIndent(records, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}
			if len(records) == 0 {
				fmt.Println("no saved sessions")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tTURNS\tSPENT\tREMAINING\tUPDATED")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%d\t$%.4f\t$%.4f\t%s\n",
					r.SessionID, len(r.History), r.BudgetUsed, r.BudgetRemaining,
					r.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}

	del := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := session.NewStore("", newLogger(*verbose, *jsonOutput))
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, del)
	return cmd
}
