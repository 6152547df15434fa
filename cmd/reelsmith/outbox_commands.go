package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"reelsmith/internal/outbox"
)

type outboxEntryView struct {
	ID          int64      `json:"id"`
	ProjectID   string     `json:"project_id"`
	PromptID    string     `json:"prompt_id"`
	Operation   string     `json:"operation"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	Payload     string     `json:"payload,omitempty"`
}

func newOutboxCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and flush the prompt sync outbox",
	}
	cmd.AddCommand(newOutboxListCommand(ctx))
	cmd.AddCommand(newOutboxStatsCommand(ctx))
	cmd.AddCommand(newOutboxFlushCommand(ctx))
	cmd.AddCommand(newOutboxPurgeCommand(ctx))
	return cmd
}

func (c *commandContext) withOutbox(fn func(*outbox.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if cfg.Paths.OutboxPath == "" {
		return errors.New("sync outbox is disabled (paths.outbox_path is empty)")
	}
	store, err := outbox.Open(cfg.Paths.OutboxPath)
	if err != nil {
		return err
	}
	runErr := fn(store)
	if err := store.Close(); err != nil && runErr == nil {
		return fmt.Errorf("close outbox: %w", err)
	}
	return runErr
}

func newOutboxListCommand(ctx *commandContext) *cobra.Command {
	var (
		pending bool
		limit   int
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List outbox entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOutbox(func(store *outbox.Store) error {
				var (
					entries []*outbox.Entry
					err     error
				)
				if pending {
					entries, err = store.Pending(cmd.Context(), limit)
				} else {
					entries, err = store.List(cmd.Context(), limit)
				}
				if err != nil {
					return err
				}
				if asJSON {
					views := make([]outboxEntryView, 0, len(entries))
					for _, e := range entries {
						views = append(views, newOutboxEntryView(e))
					}
					return writeJSON(cmd, views)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "Outbox is empty")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					state := "pending"
					if e.Delivered() {
						state = "delivered"
					} else if e.Attempts > 0 {
						state = "retrying"
					}
					rows = append(rows, []string{
						strconv.FormatInt(e.ID, 10),
						e.ProjectID,
						e.PromptID,
						string(e.Operation),
						state,
						strconv.Itoa(e.Attempts),
						e.UpdatedAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Project", "Prompt", "Op", "State", "Attempts", "Updated"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&pending, "pending", false, "Only show undelivered entries, oldest first")
	cmd.Flags().IntVarP(&limit, "limit", "n", outbox.DefaultBatch, "Maximum entries to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newOutboxStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize outbox delivery state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOutbox(func(store *outbox.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, map[string]int{
						"total":     stats.Total,
						"pending":   stats.Pending,
						"retrying":  stats.Retrying,
						"delivered": stats.Delivered,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Total", "Pending", "Retrying", "Delivered"},
					[][]string{{
						strconv.Itoa(stats.Total),
						strconv.Itoa(stats.Pending),
						strconv.Itoa(stats.Retrying),
						strconv.Itoa(stats.Delivered),
					}},
					[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// newOutboxFlushCommand hands pending entries to a sync agent by appending
// them as JSON lines to a spool file.
func newOutboxFlushCommand(ctx *commandContext) *cobra.Command {
	var (
		target string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Append pending entries to a JSON lines spool file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" {
				return errors.New("--to is required")
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create spool directory: %w", err)
			}
			spool, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("open spool: %w", err)
			}
			defer spool.Close()

			return ctx.withOutbox(func(store *outbox.Store) error {
				enc := json.NewEncoder(spool)
				result, err := store.Drain(cmd.Context(), func(_ context.Context, entry outbox.Entry) error {
					return enc.Encode(newOutboxEntryView(&entry))
				}, limit)
				if err != nil {
					return err
				}
				if err := spool.Sync(); err != nil {
					return fmt.Errorf("sync spool: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Delivered %d entries (%d failed, %d superseded) to %s\n",
					result.Delivered, result.Failed, result.Superseded, target)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&target, "to", "", "Spool file receiving delivered entries")
	cmd.Flags().IntVarP(&limit, "limit", "n", outbox.DefaultBatch, "Maximum entries to deliver")
	return cmd
}

func newOutboxPurgeCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove delivered entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan < 0 {
				return errors.New("--older-than must not be negative")
			}
			return ctx.withOutbox(func(store *outbox.Store) error {
				removed, err := store.Purge(cmd.Context(), time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d delivered entries\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "Only remove entries delivered before this age")
	return cmd
}

func newOutboxEntryView(e *outbox.Entry) outboxEntryView {
	return outboxEntryView{
		ID:          e.ID,
		ProjectID:   e.ProjectID,
		PromptID:    e.PromptID,
		Operation:   string(e.Operation),
		Attempts:    e.Attempts,
		LastError:   e.LastError,
		UpdatedAt:   e.UpdatedAt,
		DeliveredAt: e.DeliveredAt,
		Payload:     e.Payload,
	}
}
