package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/soyeahso/crmdesk/internal/agent"
	"github.com/soyeahso/crmdesk/internal/domain"
)

func newMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Send messages through the agent layer",
	}

	cmd.AddCommand(newMessageSendCmd())
	return cmd
}

func newMessageSendCmd() *cobra.Command {
	var (
		agentType string
		sessionID string
		stream    bool
	)

	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Route a message to an agent and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := buildStack(cfg, paths, log)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if sessionID == "" {
				sessionID = "cli-" + uuid.NewString()
			}
			history := []domain.ChatMessage{domain.NewChatMessage(domain.RoleUser, strings.Join(args, " "))}

			decision := st.orchestrator.Route(ctx, history, agentType, sessionID)
			resolved := domain.AgentType(agentType)
			if a, ok := st.orchestrator.Resolve(decision.AgentID); ok {
				resolved = a.Type
			}
			stderr := cmd.ErrOrStderr()
			if decision.ShouldHandoff {
				fmt.Fprintf(stderr, "[handoff → %s: %s]\n", decision.AgentID, decision.Reason)
			}

			meta := map[string]any{domain.MetaChannel: domain.ChannelInternal}
			if decision.ShouldHandoff {
				meta[domain.MetaHandoffNote] = fmt.Sprintf("Transferring to %s specialist: %s", resolved, decision.Reason)
			}
			ac := domain.AgentContext{
				SessionID:           sessionID,
				AgentType:           resolved,
				ConversationHistory: history,
				Metadata:            meta,
			}
			res, err := st.manager.Process(ctx, history, ac, stream)
			return printResult(cmd, res, err)
		},
	}

	cmd.Flags().StringVar(&agentType, "agent", string(domain.AgentGeneral), "current agent id or type")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id (default: random)")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream the response")

	return cmd
}

func printResult(cmd *cobra.Command, res agent.Result, err error) error {
	out := cmd.OutOrStdout()
	switch r := res.(type) {
	case agent.Streamed:
		for chunk := range r.Chunks {
			fmt.Fprint(out, chunk)
		}
		fmt.Fprintln(out)
		fmt.Fprintf(cmd.ErrOrStderr(), "\n[agent=%s model=%s]\n", r.AgentType, r.Model)
		return err
	case agent.Completed:
		fmt.Fprintln(out, r.Response.Content)
		fmt.Fprintf(cmd.ErrOrStderr(), "\n[agent=%s model=%s %dms]\n",
			r.Response.AgentType, r.Response.Model, r.Response.ProcessingTime)
		return err
	}
	if err == nil {
		err = errors.New("no response")
	}
	return err
}
