package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soyeahso/crmdesk/internal/gateway"
	"github.com/soyeahso/crmdesk/internal/logging"
	"github.com/soyeahso/crmdesk/internal/monitor"
	"github.com/soyeahso/crmdesk/internal/notify"
)

func newGatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Manage the crmdesk chat server",
	}

	cmd.AddCommand(newGatewayRunCmd())
	return cmd
}

func newGatewayRunCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}
			if logLevel == "" {
				log = logging.NewWithStyle(cfg.Logging.Style, cfg.Logging.Level)
			}
			if err := paths.EnsureDirs(); err != nil {
				return err
			}

			st, err := buildStack(cfg, paths, log)
			if err != nil {
				return err
			}
			defer st.Close()

			if names := st.providers.List(); len(names) > 0 {
				log.Info().Strs("providers", names).Msg("LLM providers configured")
			} else {
				log.Warn().Msg("no LLM provider key set; chat requests will fail until one is configured")
			}

			slack, err := notify.FromConfig(cfg.Notify.Slack, log)
			if err != nil {
				return err
			}
			if slack != nil {
				slack.Register(st.hooks)
				log.Info().Str("channel", cfg.Notify.Slack.Channel).Msg("slack notifications enabled")
			}

			opts := []gateway.ServerOption{
				gateway.WithLogReader(st.logs),
				gateway.WithHooks(st.hooks),
				gateway.WithMetrics(st.metrics),
			}
			if cfg.Health.Schedule != "" {
				prober := monitor.NewProber(st.manager, st.hooks, log)
				if err := prober.Start(cfg.Health.Schedule); err != nil {
					return err
				}
				defer prober.Stop()
				opts = append(opts, gateway.WithHealthCache(prober))
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := gateway.New(cfg, st.registry, st.orchestrator, st.manager, log, opts...)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}
