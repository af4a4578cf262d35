package main

import (
	"context"
	"fmt"

	"github.com/dukex/packflow/pkg/log"
	"github.com/urfave/cli/v3"
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Check that packs parse and their workflows compile",
		Flags:   packFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("packflow-validate")

			_, set, workflows, err := loadWorkflows(ctx, logger, command)
			if err != nil {
				return err
			}

			out := command.Root().Writer

			for _, name := range set.Names() {
				fmt.Fprintf(out, "pack %s: ok\n", name)
			}

			for _, plan := range workflows.FetchAll() {
				fmt.Fprintf(out, "workflow %s: %d steps, %d triggers\n",
					plan.ID(), len(plan.Workflow.Steps), len(plan.Workflow.Triggers))
			}

			return nil
		},
	}
}
