package cli

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/crmdesk/internal/config"
	"github.com/soyeahso/crmdesk/internal/version"
)

func newStatusCmd() *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show crmdesk status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "crmdesk %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintln(out)

			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprintln(out, "Config:  not found (using defaults and environment)")
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}

			fmt.Fprintf(out, "Server:  port=%d bind=%s\n", cfg.Server.Port, cfg.Server.Bind)
			storePath := "-"
			if cfg.Store.Driver == "sqlite" {
				storePath = paths.LogDB(cfg.Store.Path)
			}
			fmt.Fprintf(out, "Store:   driver=%s path=%s\n", cfg.Store.Driver, storePath)

			st, err := buildStack(cfg, paths, log)
			if err != nil {
				return err
			}
			defer st.Close()

			if names := st.providers.List(); len(names) > 0 {
				fmt.Fprintf(out, "LLM:     %s\n", strings.Join(names, ", "))
			} else {
				fmt.Fprintln(out, "LLM:     (no provider key set)")
			}

			active := st.registry.Active()
			ids := make([]string, len(active))
			for i, a := range active {
				ids[i] = a.ID
			}
			fmt.Fprintf(out, "Agents:  %d active (%s)\n", len(active), strings.Join(ids, ", "))

			schedule := cfg.Health.Schedule
			if schedule == "" {
				schedule = "(disabled)"
			}
			fmt.Fprintf(out, "Health:  schedule=%s\n", schedule)
			if cfg.Notify.Slack.Enabled() {
				fmt.Fprintf(out, "Slack:   channel=%s minPriority=%s\n", cfg.Notify.Slack.Channel, cfg.Notify.Slack.MinPriority)
			}

			if probe {
				report := st.manager.HealthCheck(context.Background())
				fmt.Fprintf(out, "\nProbe:   %s\n", report.Status)
				models := make([]string, 0, len(report.Models))
				for m := range report.Models {
					models = append(models, m)
				}
				slices.Sort(models)
				for _, m := range models {
					mark := "ok"
					if !report.Models[m] {
						mark = "FAIL"
					}
					fmt.Fprintf(out, "  %-28s %s\n", m, mark)
				}
			}

			if issues := config.Validate(&cfg); len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false, "send a test prompt to every configured model")
	return cmd
}
