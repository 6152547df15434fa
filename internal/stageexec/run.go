package stageexec

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"reelsmith/internal/logging"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
)

// Options controls logging around a single stage execution.
type Options struct {
	Logger *slog.Logger
	// LevelOverrides maps stage IDs to log levels (logging.stage_overrides).
	LevelOverrides map[string]string
}

// Run executes one module with the standard stage lifecycle: a cancellation
// check before starting, stage_start/stage_complete/stage_failure events, one
// warning log per partial-result warning, and conversion of a module panic
// into a Failure.
func Run[In stage.Input, Out any](ctx context.Context, opts Options, module stage.Module[In, Out], in In) (result stage.Result[Out]) {
	info := module.Info()
	stageCtx := services.WithStage(ctx, info.ID)
	stageLogger := logging.WithContext(ctx, logging.ForStage(opts.Logger, opts.LevelOverrides, info.ID))

	if err := ctx.Err(); err != nil {
		result = stage.Cancelled[Out](info, err)
		logFailure(stageLogger, result)
		return result
	}

	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("module_version", info.Version),
	)
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			reason := fmt.Sprintf("%s panicked: %v", Label(info.ID), r)
			result = stage.Failure[Out](reason,
				services.Wrap(services.ErrTransient, info.ID, "process", reason, nil),
				stage.ForModule(info))
			logFailure(stageLogger, result)
		}
	}()

	result = module.Process(stageCtx, in)
	elapsed := time.Since(started)

	switch result.Kind() {
	case stage.KindFailure:
		logFailure(stageLogger, result)
	case stage.KindPartial:
		for _, warning := range result.Warnings() {
			logging.WarnWithContext(stageLogger, "stage degraded", "stage_partial",
				logging.String("warning", warning),
				logging.String(logging.FieldImpact, "output is usable but lower quality"),
				logging.String(logging.FieldErrorHint, "review the warning and source material"),
			)
		}
		fallthrough
	default:
		stageLogger.Info(
			"stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.String("result", result.Kind().String()),
			logging.Duration("elapsed", elapsed),
		)
	}
	return result
}

func logFailure[Out any](logger *slog.Logger, result stage.Result[Out]) {
	details := services.Details(result.Err())
	diag := result.Diagnostics()
	attrs := []logging.Attr{
		logging.String("error_kind", details.Kind),
		logging.String("error_message", strings.TrimSpace(result.Reason())),
		logging.Error(result.Err()),
	}
	if diag.Field != "" {
		attrs = append(attrs, logging.String("field", diag.Field))
	}
	if diag.Segment != nil {
		attrs = append(attrs,
			logging.String("segment_id", diag.Segment.ID),
			logging.Int("segment_index", diag.Segment.Index))
	}
	if !services.Retryable(result.Err()) {
		attrs = append(attrs, logging.String(logging.FieldErrorHint, "fix the input or configuration; retrying will not help"))
	}
	logging.ErrorWithContext(logger, "stage failed", "stage_failure", attrs...)
}

// Label turns a stage ID such as "continuity_check" into "Continuity Check".
func Label(id string) string {
	if id == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.Join(strings.FieldsFunc(id, func(r rune) bool {
		return r == '_' || r == '-'
	}), " "))
}
