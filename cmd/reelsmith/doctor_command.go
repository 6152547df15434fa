package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"reelsmith/internal/pipeline"
	"reelsmith/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, external tools, and stage configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			healthy := true

			for _, line := range renderSectionHeader("Configuration", colorize) {
				fmt.Fprintln(out, line)
			}
			configMsg := ctx.configPath
			if !ctx.configSeen {
				configMsg += " (not found, defaults in use)"
			}
			fmt.Fprintln(out, renderStatusLine("Config file", statusInfo, configMsg, colorize))
			fmt.Fprintln(out, renderStatusLine("Outbox enabled", statusInfo, yesNo(cfg.Paths.OutboxPath != ""), colorize))

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Preflight", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, r := range preflight.RunAll(cfg) {
				kind := statusOK
				switch {
				case r.Warning:
					kind = statusWarn
				case !r.Passed:
					kind = statusError
					healthy = false
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Stages", colorize) {
				fmt.Fprintln(out, line)
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			engine, err := pipeline.NewFromConfig(cfg, logger)
			if err != nil {
				fmt.Fprintln(out, renderStatusLine("Pipeline", statusError, err.Error(), colorize))
				return errors.New("pipeline could not be built from configuration")
			}
			for _, v := range engine.Validate() {
				if v.Valid() {
					fmt.Fprintln(out, renderStatusLine(v.Module, statusOK, "", colorize))
					continue
				}
				healthy = false
				for _, problem := range v.Problems {
					fmt.Fprintln(out, renderStatusLine(v.Module, statusError, problem, colorize))
				}
			}

			if !healthy {
				return errors.New("doctor found problems")
			}
			return nil
		},
	}
}
