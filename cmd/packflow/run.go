package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dukex/packflow/pkg/log"
	"github.com/dukex/packflow/pkg/models"
	"github.com/urfave/cli/v3"
)

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Aliases:   []string{"r"},
		Usage:     "Execute one workflow to completion and print the run",
		ArgsUsage: "<workflow-id>",
		Flags: flags(packFlags(), storeFlags(), engineFlags(), []cli.Flag{
			&cli.StringFlag{
				Name:  "tenant",
				Usage: "Tenant whose values are exposed to the run",
			},
			&cli.StringFlag{
				Name:  "data",
				Usage: "Trigger data as a JSON object",
				Value: "{}",
			},
		}),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("packflow-run")

			workflowID := command.Args().First()
			if workflowID == "" {
				return models.NewValidationError("workflow", "workflow id argument is required")
			}

			var triggerData map[string]any
			if err := json.Unmarshal([]byte(command.String("data")), &triggerData); err != nil {
				return &models.ValidationError{Path: "data", Message: "trigger data must be a JSON object", Err: err}
			}

			app, err := newEngine(ctx, logger, command)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			run, runErr := app.manager.RunSync(ctx, workflowID, command.String("tenant"), triggerData)
			if run == nil {
				return runErr
			}

			encoder := json.NewEncoder(command.Root().Writer)
			encoder.SetIndent("", "  ")

			if err := encoder.Encode(run); err != nil {
				return err
			}

			if runErr != nil {
				return fmt.Errorf("run %s %s: %w", run.ID, run.Status, runErr)
			}

			return nil
		},
	}
}
