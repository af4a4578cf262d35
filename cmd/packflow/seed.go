package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dukex/packflow/pkg/cmd"
	"github.com/dukex/packflow/pkg/expression"
	"github.com/dukex/packflow/pkg/log"
	"github.com/dukex/packflow/pkg/pack"
	"github.com/dukex/packflow/pkg/seed"
	"github.com/urfave/cli/v3"
)

func NewSeedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Load the seed records of packs into the data store",
		Flags: flags(packFlags(), storeFlags()),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("packflow-seed")

			set, err := pack.LoadPath(command.String("packs-path"))
			if err != nil {
				return fmt.Errorf("failed to load packs: %w", err)
			}

			store, closeStore, err := cmd.NewDataStore(ctx, logger, command.String("store-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := closeStore(); err != nil {
					logger.Error("Failed to close data store", "error", err)
				}
			}()

			result, err := seed.NewLoader(store, expression.New(), logger).Load(ctx, set.Seeds())
			if err != nil {
				return fmt.Errorf("seed failed: %w", err)
			}

			encoder := json.NewEncoder(command.Root().Writer)
			encoder.SetIndent("", "  ")

			return encoder.Encode(result)
		},
	}
}
