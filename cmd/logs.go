package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var logsLimit int

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print the most recent warnings and errors persisted to PostgreSQL",
	RunE: func(cmd *cobra.Command, args []string) error {
		if dbConn == nil {
			return errors.New("database log persistence is disabled, set LOG_TO_DB and the POSTGRES_* variables")
		}
		entries, err := dbConn.Logs.Recent(cmd.Context(), logsLimit)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tLEVEL\tREQUEST\tMESSAGE")
		for _, e := range entries {
			requestID := e.RequestID
			if requestID == "" {
				requestID = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.CreatedAt.Format(time.RFC3339), e.Level, requestID, e.Message)
		}
		return tw.Flush()
	},
}

func init() {
	logsCmd.Flags().IntVar(&logsLimit, "limit", 50, "number of entries to print")
	rootCmd.AddCommand(logsCmd)
}
