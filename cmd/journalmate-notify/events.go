package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/journalmate/internal/model"
)

type eventOptions struct {
	entityType string
	entityID   string
	userID     string
	file       string
	changed    []string
}

// newEventCmd feeds entity lifecycle events through the hooks, the same
// path the host application takes. Task-completion side effects need the
// host's task directory and streak store, so they are not exposed here.
func newEventCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Apply an entity lifecycle event (created, updated, completed, deleted)",
		Long: `Apply an entity lifecycle event.

Examples:
  journalmate-notify event created --type goal --id g1 --user u1 --file goal.json
  journalmate-notify event updated --type goal --id g1 --user u1 --file goal.json --changed deadline
  journalmate-notify event completed --type activity --id a1`,
	}

	cmd.AddCommand(newEntityEventCmd(opts, "created", true, func(a *app, cmd *cobra.Command, eo *eventOptions) error {
		entity, err := readEntity(cmd.InOrStdin(), eo.file)
		if err != nil {
			return err
		}
		n := a.hooks.OnCreated(cmd.Context(), entity, model.SourceType(eo.entityType), eo.entityID, eo.userID)
		fmt.Fprintf(cmd.OutOrStdout(), "scheduled %d notifications\n", n)
		return nil
	}))

	cmd.AddCommand(newEntityEventCmd(opts, "updated", true, func(a *app, cmd *cobra.Command, eo *eventOptions) error {
		entity, err := readEntity(cmd.InOrStdin(), eo.file)
		if err != nil {
			return err
		}
		changed := make(map[string]any, len(eo.changed))
		for _, k := range eo.changed {
			changed[k] = entity[k]
		}
		if len(eo.changed) == 0 {
			changed = entity
		}
		n, rescheduled := a.hooks.OnUpdated(cmd.Context(), entity, changed, model.SourceType(eo.entityType), eo.entityID, eo.userID)
		if !rescheduled {
			fmt.Fprintln(cmd.OutOrStdout(), "no time fields changed")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rescheduled %d notifications\n", n)
		return nil
	}))

	cmd.AddCommand(newEntityEventCmd(opts, "completed", false, func(a *app, cmd *cobra.Command, eo *eventOptions) error {
		n := a.hooks.OnCompleted(cmd.Context(), model.SourceType(eo.entityType), eo.entityID)
		fmt.Fprintf(cmd.OutOrStdout(), "cancelled %d notifications\n", n)
		return nil
	}))

	cmd.AddCommand(newEntityEventCmd(opts, "deleted", false, func(a *app, cmd *cobra.Command, eo *eventOptions) error {
		n := a.hooks.OnDeleted(cmd.Context(), model.SourceType(eo.entityType), eo.entityID)
		fmt.Fprintf(cmd.OutOrStdout(), "cancelled %d notifications\n", n)
		return nil
	}))

	return cmd
}

// newEntityEventCmd builds one event subcommand. withEntity adds the
// --user, --file and, for updates, --changed flags.
func newEntityEventCmd(
	opts *rootOptions,
	name string,
	withEntity bool,
	apply func(a *app, cmd *cobra.Command, eo *eventOptions) error,
) *cobra.Command {
	eo := &eventOptions{}

	cmd := &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("Handle an entity %s event", name),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			return apply(a, cmd, eo)
		},
	}

	cmd.Flags().StringVarP(&eo.entityType, "type", "t", "", "entity type")
	cmd.Flags().StringVar(&eo.entityID, "id", "", "entity ID")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("id")
	if withEntity {
		cmd.Flags().StringVarP(&eo.userID, "user", "u", "", "owning user ID")
		cmd.Flags().StringVarP(&eo.file, "file", "f", "-", "JSON entity file, - for stdin")
		_ = cmd.MarkFlagRequired("user")
	}
	if name == "updated" {
		cmd.Flags().StringSliceVar(&eo.changed, "changed", nil, "changed top-level fields; all fields when empty")
	}

	return cmd
}
