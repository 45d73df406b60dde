package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"streamq/cmd/app/options"
	"streamq/pkg/apiserver/streamqueue"
)

func addQueueCommands(root *cobra.Command, o *options.RunOptions) {
	root.AddCommand(
		newIDsCommand(o),
		newDumpCommand(o),
		newTailCommand(o),
		newPushCommand(o),
		newCancelCommand(o),
		newCopyCommand(o),
		newClearCommand(o),
	)
}

func newIDsCommand(o *options.RunOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ids",
		Short: "List run ids present in the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildQueueEnv(o.GenericOptions)
			if err != nil {
				return err
			}
			ids := env.manager.GetAllQueueIDs()
			if env.redisFactory != nil {
				if ids, err = env.redisFactory.ListIDs(cmd.Context()); err != nil {
					return err
				}
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func newDumpCommand(o *options.RunOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dump <run-id>",
		Short: "Print the full ordered snapshot of a run's event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildQueueEnv(o.GenericOptions)
			if err != nil {
				return err
			}
			data, err := env.manager.GetQueueData(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(data, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newTailCommand(o *options.RunOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tail <run-id>",
		Short: "Live-tail a run's event stream until it terminates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildQueueEnv(o.GenericOptions)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			q, err := env.manager.GetQueue(ctx, args[0])
			if err != nil {
				return err
			}
			ch, err := q.OnDataReceive(ctx)
			if err != nil {
				return err
			}
			for msg := range ch {
				printEvent(cmd, msg)
			}
			return nil
		},
	}
}

func printEvent(cmd *cobra.Command, msg streamqueue.EventMessage) {
	payload, _ := json.Marshal(msg.Payload)
	switch msg.Event {
	case streamqueue.EventStreamEnd:
		fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("== stream end =="))
	case streamqueue.EventStreamError:
		fmt.Fprintln(cmd.OutOrStdout(), color.RedString("== stream error == %s", payload))
	case streamqueue.EventStreamCancel:
		fmt.Fprintln(cmd.OutOrStdout(), color.YellowString("== stream cancelled =="))
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", color.CyanString(msg.Event), payload)
	}
}

func newPushCommand(o *options.RunOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "push <run-id> <event> [payload-json]",
		Short: "Append one event to a run's log, creating the queue if needed",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildQueueEnv(o.GenericOptions)
			if err != nil {
				return err
			}
			msg := streamqueue.EventMessage{Event: args[1]}
			if len(args) == 3 {
				if err := json.Unmarshal([]byte(args[2]), &msg.Payload); err != nil {
					return fmt.Errorf("payload is not valid JSON: %w", err)
				}
			}
			err = env.manager.PushToQueue(cmd.Context(), args[0], msg)
			if errors.Is(err, streamqueue.ErrQueueNotFound) {
				var q streamqueue.Queue
				if q, err = env.manager.CreateQueue(cmd.Context(), args[0], 0); err == nil {
					err = q.Push(cmd.Context(), msg)
				}
			}
			return err
		},
	}
}

func newCancelCommand(o *options.RunOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Terminate a run's stream for all observers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildQueueEnv(o.GenericOptions)
			if err != nil {
				return err
			}
			return env.manager.CancelQueue(cmd.Context(), args[0])
		},
	}
}

func newCopyCommand(o *options.RunOptions) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "copy <from-run-id> [to-run-id]",
		Short: "Snapshot a run's log into a new, independently-lived queue",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildQueueEnv(o.GenericOptions)
			if err != nil {
				return err
			}
			toID := uuid.New().String()
			if len(args) == 2 {
				toID = args[1]
			}
			if _, err := env.manager.CopyQueue(cmd.Context(), args[0], toID, ttl); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), toID)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "TTL for the copy (defaults to the source's)")
	return cmd
}

func newClearCommand(o *options.RunOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clear [run-id]",
		Short: "Discard the stored entries of one run, or of every registered run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildQueueEnv(o.GenericOptions)
			if err != nil {
				return err
			}
			if all {
				return env.manager.ClearAllQueues(cmd.Context())
			}
			if len(args) != 1 {
				return fmt.Errorf("a run id is required unless --all is set")
			}
			return env.manager.ClearQueue(cmd.Context(), args[0])
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "clear every locally registered queue")
	return cmd
}
