package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/crmdesk/internal/config"
)

func newLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Inspect the persisted agent log",
	}

	cmd.AddCommand(newLogsListCmd())
	cmd.AddCommand(newLogsStatsCmd())
	return cmd
}

func newLogsListCmd() *cobra.Command {
	var (
		limit     int
		agentType string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the most recent agent log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			logs, db, err := openLogBackend(cfg.Store, paths, log)
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
			}

			entries, err := logs.Recent(context.Background(), limit, agentType)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tAGENT\tACTION\tSESSION\tCHANNEL\tMS")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\t%d\n",
					e.CreatedAt.Local().Format(time.DateTime), e.AgentType, e.Action,
					e.Metadata["sessionId"], e.Channel, e.ResponseTimeMs)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of entries")
	cmd.Flags().StringVar(&agentType, "agent-type", "", "only show entries for this agent type")
	return cmd
}

func newLogsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-agent success rates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			logs, db, err := openLogBackend(cfg.Store, paths, log)
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
			}

			stats, err := logs.Stats(context.Background())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "AGENT\tTOTAL\tSUCCESS\tRATE\tAVG MS")
			for _, s := range stats {
				fmt.Fprintf(w, "%s\t%d\t%d\t%.0f%%\t%.0f\n",
					s.AgentType, s.Total, s.Successes, s.SuccessRate()*100, s.AvgResponseTimeMs)
			}
			return w.Flush()
		},
	}
}
