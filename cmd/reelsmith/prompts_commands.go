package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reelsmith/internal/projects"
	"reelsmith/internal/projectstate"
)

func newPromptsCommand(ctx *commandContext) *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Manage the prompts stored for a project",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(projectID) == "" {
				return errors.New("--project is required")
			}
			_, err := ctx.ensureConfig()
			return err
		},
	}
	cmd.PersistentFlags().StringVarP(&projectID, "project", "p", "", "Project id")

	project := func() string { return strings.TrimSpace(projectID) }

	cmd.AddCommand(newPromptsListCommand(ctx, project))
	cmd.AddCommand(newPromptsAddCommand(ctx, project))
	cmd.AddCommand(newPromptsEditCommand(ctx, project))
	cmd.AddCommand(newPromptsMoveCommand(ctx, project))
	cmd.AddCommand(newPromptsDeleteCommand(ctx, project))
	cmd.AddCommand(newPromptsStatusCommand(ctx, project))
	cmd.AddCommand(newPromptsMigrateCommand(ctx, project))
	return cmd
}

func newPromptsListCommand(ctx *commandContext, project func() string) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List prompts in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *projects.Service) error {
				prompts, err := svc.List(cmd.Context(), project())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, prompts)
				}
				out := cmd.OutOrStdout()
				if len(prompts) == 0 {
					fmt.Fprintln(out, "No prompts")
					return nil
				}
				fmt.Fprintln(out, renderPromptTable(prompts))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newPromptsAddCommand(ctx *commandContext, project func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "add <text>",
		Short: "Append a prompt to the project",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *projects.Service) error {
				prompt, err := svc.Add(cmd.Context(), project(), strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added prompt %s at position %d\n", prompt.ID, prompt.Index)
				return nil
			})
		},
	}
}

func newPromptsEditCommand(ctx *commandContext, project func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id> <text>",
		Short: "Replace a prompt's text",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *projects.Service) error {
				_, found, err := svc.Edit(cmd.Context(), project(), args[0], strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				if !found {
					return promptNotFound(args[0], project())
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated prompt %s\n", args[0])
				return nil
			})
		},
	}
}

func newPromptsMoveCommand(ctx *commandContext, project func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <position>",
		Short: "Move a prompt to a zero-based position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid position %q", args[1])
			}
			return ctx.withService(func(svc *projects.Service) error {
				found, err := svc.Move(cmd.Context(), project(), args[0], to)
				if err != nil {
					return err
				}
				if !found {
					return promptNotFound(args[0], project())
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Moved prompt %s\n", args[0])
				return nil
			})
		},
	}
}

func newPromptsDeleteCommand(ctx *commandContext, project func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *projects.Service) error {
				found, err := svc.Delete(cmd.Context(), project(), args[0])
				if err != nil {
					return err
				}
				if !found {
					return promptNotFound(args[0], project())
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted prompt %s\n", args[0])
				return nil
			})
		},
	}
}

func newPromptsStatusCommand(ctx *commandContext, project func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Set a prompt's processing status",
		Long:  "Set a prompt's processing status (pending, processing, completed, failed).",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, ok := projectstate.ParseStatus(args[1])
			if !ok {
				return fmt.Errorf("unknown status %q", args[1])
			}
			return ctx.withService(func(svc *projects.Service) error {
				prompts, err := svc.List(cmd.Context(), project())
				if err != nil {
					return err
				}
				if !containsPrompt(prompts, args[0]) {
					return promptNotFound(args[0], project())
				}
				if err := svc.SetStatus(cmd.Context(), project(), args[0], status); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Prompt %s is %s\n", args[0], status)
				return nil
			})
		},
	}
}

func newPromptsMigrateCommand(ctx *commandContext, project func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <legacy.json|->",
		Short: "Import a legacy JSON array of prompt strings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			texts, err := readLegacyPrompts(cmd, args[0])
			if err != nil {
				return err
			}
			return ctx.withService(func(svc *projects.Service) error {
				added, err := svc.Import(cmd.Context(), project(), texts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d prompts into %s\n", len(added), project())
				return nil
			})
		},
	}
}

func readLegacyPrompts(cmd *cobra.Command, source string) ([]string, error) {
	var (
		data []byte
		err  error
	)
	if source == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("read legacy prompts: %w", err)
	}
	var texts []string
	if err := json.Unmarshal(data, &texts); err != nil {
		return nil, fmt.Errorf("legacy prompts must be a JSON array of strings: %w", err)
	}
	return texts, nil
}

func renderPromptTable(prompts []projectstate.Prompt) string {
	rows := make([][]string, 0, len(prompts))
	for _, p := range prompts {
		rows = append(rows, []string{
			strconv.Itoa(p.Index),
			p.ID,
			string(p.Status),
			string(p.GenerationVersion),
			p.UpdatedAt.Local().Format(time.DateTime),
			truncate(p.Text, 48),
		})
	}
	return renderTable(
		[]string{"#", "ID", "Status", "Gen", "Updated", "Prompt"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
	)
}

func containsPrompt(prompts []projectstate.Prompt, id string) bool {
	for _, p := range prompts {
		if p.ID == id {
			return true
		}
	}
	return false
}

func promptNotFound(id, project string) error {
	return fmt.Errorf("prompt %s not found in project %s", id, project)
}

func truncate(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
