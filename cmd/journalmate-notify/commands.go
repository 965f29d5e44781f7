package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/journalmate/internal/credential"
	"github.com/nhle/journalmate/internal/model"
	"github.com/nhle/journalmate/internal/scheduler"
	"github.com/nhle/journalmate/internal/timefield"
)

func secondsToDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}

func newProcessCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Run one dispatch cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.dispatcher.ProcessScheduledNotifications(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fetched %d, sent %d, failed %d, deferred %d, skipped %d\n",
				res.Fetched, res.Sent, res.Failed, res.Deferred, res.Skipped)
			return nil
		},
	}
}

type scheduleOptions struct {
	entityType string
	entityID   string
	userID     string
	file       string
	replace    bool
}

func newScheduleCmd(opts *rootOptions) *cobra.Command {
	so := &scheduleOptions{}

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule reminders for an entity read from a JSON file",
		Long: `Schedule reminders for an entity.

The entity is a JSON object; every recognised date field produces reminders.

Examples:
  journalmate-notify schedule --type activity --id a1 --user u1 --file trip.json
  cat task.json | journalmate-notify schedule --type task --id t1 --user u1 --replace`,
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := readEntity(cmd.InOrStdin(), so.file)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, opts, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			sourceType := model.SourceType(so.entityType)
			var created int
			if so.replace {
				created = a.scheduler.Reschedule(ctx, entity, sourceType, so.entityID, so.userID)
			} else {
				created = a.scheduler.AutoSchedule(ctx, entity, sourceType, so.entityID, so.userID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scheduled %d notifications\n", created)
			return nil
		},
	}

	cmd.Flags().StringVarP(&so.entityType, "type", "t", "", "entity type (task, activity, activityTask, goal, calendarEvent, media)")
	cmd.Flags().StringVar(&so.entityID, "id", "", "entity ID")
	cmd.Flags().StringVarP(&so.userID, "user", "u", "", "owning user ID")
	cmd.Flags().StringVarP(&so.file, "file", "f", "-", "JSON entity file, - for stdin")
	cmd.Flags().BoolVar(&so.replace, "replace", false, "cancel existing reminders first")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

// readEntity decodes a JSON object from path, or from stdin when path is
// "-".
func readEntity(stdin io.Reader, path string) (timefield.Entity, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening entity file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var entity timefield.Entity
	if err := json.NewDecoder(r).Decode(&entity); err != nil {
		return nil, fmt.Errorf("decoding entity: %w", err)
	}
	if entity == nil {
		return nil, fmt.Errorf("entity must be a JSON object")
	}
	return entity, nil
}

func newCancelCmd(opts *rootOptions) *cobra.Command {
	var entityType, entityID string

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the pending reminders of an entity",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.scheduler.CancelForSource(ctx, model.SourceType(entityType), entityID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled %d notifications\n", n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&entityType, "type", "t", "", "entity type")
	cmd.Flags().StringVar(&entityID, "id", "", "entity ID")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func newAccountabilityCmd(opts *rootOptions) *cobra.Command {
	var userID, period string

	cmd := &cobra.Command{
		Use:   "accountability",
		Short: "Schedule accountability check-ins for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if period == "" {
				n := a.scheduler.ScheduleAllAccountability(ctx, userID)
				fmt.Fprintf(cmd.OutOrStdout(), "scheduled %d check-ins\n", n)
				return nil
			}

			n, err := a.scheduler.ScheduleAccountability(ctx, userID, period)
			if err != nil {
				return err
			}
			if n == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to schedule")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scheduled %s at %s\n", n.NotificationType, n.ScheduledAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user ID")
	cmd.Flags().StringVarP(&period, "period", "p", "", fmt.Sprintf("one of %v; all when empty", scheduler.Periods))
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and print the schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			v, err := a.store.SchemaVersion()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
			return nil
		},
	}
}

func newPushTokenCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push-token",
		Short: "Manage the push gateway token in the system keyring",
	}

	key := func() (string, error) {
		cfg, err := model.LoadConfig(opts.configPath)
		if err != nil {
			return "", err
		}
		return cfg.Push.CredentialKey, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set [token]",
		Short: "Store the push gateway token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := key()
			if err != nil {
				return err
			}
			return credential.Set(k, args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Remove the push gateway token",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := key()
			if err != nil {
				return err
			}
			return credential.Delete(k)
		},
	})

	return cmd
}
