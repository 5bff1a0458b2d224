package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/crmdesk/internal/agent"
	"github.com/soyeahso/crmdesk/internal/config"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage agents",
	}

	cmd.AddCommand(newAgentListCmd())
	cmd.AddCommand(newAgentToggleCmd("enable", true))
	cmd.AddCommand(newAgentToggleCmd("disable", false))
	return cmd
}

func newAgentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				cfg = config.Defaults()
			}

			out := cmd.OutOrStdout()
			for _, a := range agent.NewRegistryFromConfig(cfg.Agents.List).List() {
				state := "active"
				if !a.Active {
					state = "inactive"
				}
				model := a.Model
				if model == "" {
					model = "(provider order)"
				}
				fmt.Fprintf(out, "  %-14s %-22s %-12s %-8s model=%s\n", a.ID, a.Name, a.Type, state, model)
				if len(a.Capabilities) > 0 {
					fmt.Fprintf(out, "  %-14s capabilities: %s\n", "", strings.Join(a.Capabilities, ", "))
				}
			}
			return nil
		},
	}
}

func newAgentToggleCmd(verb string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <agent-id>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " an agent in the config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if _, ok := agent.NewRegistryFromConfig(cfg.Agents.List).Get(id); !ok {
				return fmt.Errorf("agent not found: %s", id)
			}

			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				return err
			}
			if err := setAgentActive(raw, id, active); err != nil {
				return err
			}
			if err := config.SaveRaw(paths.Config, raw); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Agent %s %sd\n", id, verb)
			return nil
		},
	}
}

// setAgentActive sets agents.list[id].active in a raw config map, adding
// a patch entry for seeded agents that have none yet.
func setAgentActive(raw map[string]any, id string, active bool) error {
	agents, ok := raw["agents"].(map[string]any)
	if !ok {
		if raw["agents"] != nil {
			return fmt.Errorf("agents: expected a map")
		}
		agents = map[string]any{}
		raw["agents"] = agents
	}

	list, ok := agents["list"].([]any)
	if !ok && agents["list"] != nil {
		return fmt.Errorf("agents.list: expected a list")
	}

	for _, item := range list {
		entry, ok := item.(map[string]any)
		if ok && entry["id"] == id {
			entry["active"] = active
			return nil
		}
	}

	agents["list"] = append(list, map[string]any{"id": id, "active": active})
	return nil
}
