package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"reelsmith/internal/media"
	"reelsmith/internal/pipeline"
	"reelsmith/internal/projects"
	"reelsmith/internal/projectstate"
	"reelsmith/internal/stage"
)

type runOptions struct {
	file            string
	source          string
	projectID       string
	promptID        string
	segmentDuration float64
	width           int
	height          int
	frameRate       float64
	bitrate         int
	format          string
	json            bool
}

type runView struct {
	RunID       string             `json:"run_id"`
	Succeeded   bool               `json:"succeeded"`
	Artifact    *artifactView      `json:"artifact,omitempty"`
	FailedStage string             `json:"failed_stage,omitempty"`
	Reason      string             `json:"reason,omitempty"`
	Diagnostics *stage.Diagnostics `json:"diagnostics,omitempty"`
	Warnings    []string           `json:"warnings"`
	Segments    []media.Segment    `json:"segments"`
	Transitions []media.Transition `json:"transitions"`
}

type artifactView struct {
	Reference  string           `json:"reference"`
	Duration   float64          `json:"duration"`
	Resolution media.Resolution `json:"resolution"`
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Run a prompt through segmentation, continuity, and stitching",
		Long: `Run a prompt through the pipeline and publish a timeline manifest.

The prompt comes from the positional arguments, from --file, or from a stored
prompt selected with --project and --prompt. A stored prompt moves to
processing for the duration of the run and ends completed or failed.

--source segments an existing media file instead of a prompt; its duration
is read with ffprobe.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			engine, err := pipeline.NewFromConfig(cfg, logger)
			if err != nil {
				return err
			}
			rc, err := opts.runConfig(cmd, cfg.OutputSettings())
			if err != nil {
				return err
			}

			if opts.source != "" {
				if len(args) > 0 || opts.file != "" || opts.projectID != "" || opts.promptID != "" {
					return errors.New("--source cannot be combined with a prompt")
				}
				return reportOutcome(cmd, engine.RunSource(cmd.Context(), opts.source, rc), opts.json)
			}

			if opts.projectID != "" || opts.promptID != "" {
				if len(args) > 0 || opts.file != "" {
					return errors.New("a stored prompt cannot be combined with prompt text or --file")
				}
				if opts.projectID == "" || opts.promptID == "" {
					return errors.New("--project and --prompt must be given together")
				}
				return ctx.withService(func(svc *projects.Service) error {
					return runStoredPrompt(cmd, svc, engine, rc, opts)
				})
			}

			prompt, err := opts.promptText(args)
			if err != nil {
				return err
			}
			return reportOutcome(cmd, engine.Run(cmd.Context(), prompt, rc), opts.json)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Read the prompt from a file")
	cmd.Flags().StringVar(&opts.source, "source", "", "Segment a local media file instead of a prompt")
	cmd.Flags().StringVar(&opts.projectID, "project", "", "Project holding a stored prompt")
	cmd.Flags().StringVar(&opts.promptID, "prompt", "", "Stored prompt id to run")
	cmd.Flags().Float64Var(&opts.segmentDuration, "segment-duration", 0, "Seconds per segment (default from config)")
	cmd.Flags().IntVar(&opts.width, "width", 0, "Output width in pixels")
	cmd.Flags().IntVar(&opts.height, "height", 0, "Output height in pixels")
	cmd.Flags().Float64Var(&opts.frameRate, "frame-rate", 0, "Output frame rate")
	cmd.Flags().IntVar(&opts.bitrate, "bitrate", 0, "Output bitrate in kbps")
	cmd.Flags().StringVar(&opts.format, "format", "", "Output container (mp4, mov, avi)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Output as JSON")
	return cmd
}

func (o runOptions) promptText(args []string) (string, error) {
	if o.file != "" {
		if len(args) > 0 {
			return "", errors.New("prompt text and --file are mutually exclusive")
		}
		data, err := os.ReadFile(o.file)
		if err != nil {
			return "", fmt.Errorf("read prompt file: %w", err)
		}
		return string(data), nil
	}
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		return "", errors.New("a prompt is required (pass text, --file, or --project with --prompt)")
	}
	return prompt, nil
}

// runConfig builds per-run overrides. Settings start from the configured
// defaults so a single changed flag does not reset the others.
func (o runOptions) runConfig(cmd *cobra.Command, settings media.OutputSettings) (pipeline.RunConfig, error) {
	var rc pipeline.RunConfig
	flags := cmd.Flags()
	if flags.Changed("segment-duration") {
		if o.segmentDuration <= 0 {
			return rc, errors.New("--segment-duration must be positive")
		}
		rc.SegmentDuration = o.segmentDuration
	}

	changed := false
	if flags.Changed("width") {
		settings.Resolution.Width = o.width
		changed = true
	}
	if flags.Changed("height") {
		settings.Resolution.Height = o.height
		changed = true
	}
	if flags.Changed("frame-rate") {
		settings.FrameRate = o.frameRate
		changed = true
	}
	if flags.Changed("bitrate") {
		settings.Bitrate = o.bitrate
		changed = true
	}
	if flags.Changed("format") {
		format, ok := media.ParseFormat(o.format)
		if !ok {
			return rc, fmt.Errorf("unsupported format %q", o.format)
		}
		settings.Format = format
		changed = true
	}
	if changed {
		rc.Settings = settings
	}
	return rc, nil
}

func runStoredPrompt(cmd *cobra.Command, svc *projects.Service, engine *pipeline.Engine, rc pipeline.RunConfig, opts runOptions) error {
	ctx := cmd.Context()
	prompts, err := svc.List(ctx, opts.projectID)
	if err != nil {
		return err
	}
	var target *projectstate.Prompt
	for i := range prompts {
		if prompts[i].ID == opts.promptID {
			target = &prompts[i]
			break
		}
	}
	if target == nil {
		return promptNotFound(opts.promptID, opts.projectID)
	}
	if err := svc.SetStatus(ctx, opts.projectID, target.ID, projectstate.StatusProcessing); err != nil {
		return err
	}

	outcome := engine.Run(ctx, target.Text, rc)

	final := projectstate.StatusCompleted
	if !outcome.Succeeded() {
		final = projectstate.StatusFailed
	}
	// The run may have been interrupted; the status write must still land.
	if err := svc.SetStatus(context.WithoutCancel(ctx), opts.projectID, target.ID, final); err != nil {
		return err
	}
	return reportOutcome(cmd, outcome, opts.json)
}

func reportOutcome(cmd *cobra.Command, outcome pipeline.Outcome, asJSON bool) error {
	view := newRunView(outcome)
	if asJSON {
		if err := writeJSON(cmd, view); err != nil {
			return err
		}
	} else {
		printRunView(cmd, view)
	}
	if outcome.Succeeded() {
		return nil
	}
	if outcome.Err != nil {
		return fmt.Errorf("run failed at %s: %w", outcome.FailedStage, outcome.Err)
	}
	return fmt.Errorf("run failed at %s: %s", outcome.FailedStage, outcome.Reason)
}

func newRunView(outcome pipeline.Outcome) runView {
	view := runView{
		RunID:       outcome.RunID,
		Succeeded:   outcome.Succeeded(),
		FailedStage: outcome.FailedStage,
		Reason:      outcome.Reason,
		Warnings:    make([]string, 0, len(outcome.Warnings)),
		Segments:    outcome.Segments,
		Transitions: outcome.Transitions,
	}
	if outcome.Artifact != nil {
		view.Artifact = &artifactView{
			Reference:  outcome.Artifact.Reference,
			Duration:   outcome.Artifact.Duration,
			Resolution: outcome.Artifact.Resolution,
		}
	} else {
		diag := outcome.Diagnostics
		view.Diagnostics = &diag
	}
	for _, w := range outcome.Warnings {
		view.Warnings = append(view.Warnings, w.String())
	}
	if view.Segments == nil {
		view.Segments = []media.Segment{}
	}
	if view.Transitions == nil {
		view.Transitions = []media.Transition{}
	}
	return view
}

func printRunView(cmd *cobra.Command, view runView) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:         %s\n", view.RunID)
	if view.Artifact != nil {
		fmt.Fprintf(out, "Artifact:    %s\n", view.Artifact.Reference)
		fmt.Fprintf(out, "Duration:    %ss\n", formatSeconds(view.Artifact.Duration))
		fmt.Fprintf(out, "Resolution:  %s\n", view.Artifact.Resolution)
	} else {
		fmt.Fprintf(out, "Failed at:   %s\n", view.FailedStage)
		fmt.Fprintf(out, "Reason:      %s\n", view.Reason)
		if view.Diagnostics != nil && view.Diagnostics.Field != "" {
			fmt.Fprintf(out, "Field:       %s\n", view.Diagnostics.Field)
		}
	}

	if len(view.Segments) > 0 {
		into := make(map[string]media.Transition, len(view.Transitions))
		for _, tr := range view.Transitions {
			into[tr.From] = tr
		}
		rows := make([][]string, 0, len(view.Segments))
		for i, seg := range view.Segments {
			next := "-"
			if tr, ok := into[seg.ID]; ok {
				next = string(tr.Type)
				if tr.Type.Blends() {
					next += " " + formatSeconds(tr.Duration) + "s"
				}
			}
			rows = append(rows, []string{
				strconv.Itoa(i + 1),
				seg.ID,
				formatSeconds(seg.Start),
				formatSeconds(seg.End),
				next,
			})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable(
			[]string{"#", "Segment", "Start", "End", "Next"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft},
		))
	}

	for _, w := range view.Warnings {
		fmt.Fprintf(out, "Warning: %s\n", w)
	}
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
