package main

import (
	"time"

	"github.com/dukex/packflow/pkg/cmd"
	"github.com/dukex/packflow/pkg/generator"
	"github.com/dukex/packflow/pkg/mailer"
	"github.com/dukex/packflow/pkg/workflow"
	"github.com/urfave/cli/v3"
)

const defaultPort = 9091

func packFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "packs-path",
			Usage:   "Pack file or directory of pack files (YAML or JSON)",
			Value:   "./packs",
			Sources: cli.EnvVars("PACKS_PATH"),
		},
		&cli.StringFlag{
			Name:    "plugins-path",
			Usage:   "Path to the directory containing action plugins",
			Value:   "./plugins",
			Sources: cli.EnvVars("PLUGINS_PATH"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
	}
}

func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "store-url",
			Usage:   "Data store URL (memory or postgres://...)",
			Value:   "memory",
			Sources: cli.EnvVars("STORE_URL"),
		},
	}
}

func engineFlags() []cli.Flag {
	defaults := workflow.DefaultLimits()

	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Run ledger URL (a directory or postgres://...)",
			Value:   "./data/runs",
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "tenants-file",
			Usage:   "YAML file describing tenants and their secrets",
			Sources: cli.EnvVars("TENANTS_FILE"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringSliceFlag{
			Name:    "kafka-brokers",
			Usage:   "Kafka brokers used by the kafka event bus",
			Value:   []string{"localhost:9092"},
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.IntFlag{
			Name:    "max-iterations",
			Usage:   "Maximum step visits of a single run",
			Value:   defaults.MaxIterations,
			Sources: cli.EnvVars("MAX_ITERATIONS"),
		},
		&cli.DurationFlag{
			Name:    "run-timeout",
			Usage:   "Wall-clock budget of a single run",
			Value:   defaults.RunTimeout,
			Sources: cli.EnvVars("RUN_TIMEOUT"),
		},
		&cli.DurationFlag{
			Name:    "action-timeout",
			Usage:   "Timeout of actions that declare none",
			Value:   defaults.ActionTimeout,
			Sources: cli.EnvVars("ACTION_TIMEOUT"),
		},
		&cli.DurationFlag{
			Name:    "http-timeout",
			Usage:   "Timeout of outbound HTTP calls made by actions",
			Value:   30 * time.Second,
			Sources: cli.EnvVars("HTTP_TIMEOUT"),
		},
		&cli.BoolFlag{
			Name:    "scripts-disabled",
			Usage:   "Reject Script actions",
			Sources: cli.EnvVars("SCRIPTS_DISABLED"),
		},
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP host; mail is only logged when empty",
			Sources: cli.EnvVars("SMTP_HOST"),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Sources: cli.EnvVars("SMTP_PORT"),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Sources: cli.EnvVars("SMTP_USERNAME"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Sources: cli.EnvVars("SMTP_PASSWORD"),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Sources: cli.EnvVars("SMTP_FROM"),
		},
		&cli.StringFlag{
			Name:    "generator-url",
			Usage:   "Chat completions base URL; prompts are echoed when empty",
			Sources: cli.EnvVars("GENERATOR_URL"),
		},
		&cli.StringFlag{
			Name:    "generator-name",
			Value:   "default",
			Sources: cli.EnvVars("GENERATOR_NAME"),
		},
		&cli.StringFlag{
			Name:    "generator-api-key",
			Sources: cli.EnvVars("GENERATOR_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "generator-model",
			Sources: cli.EnvVars("GENERATOR_MODEL"),
		},
		&cli.BoolFlag{
			Name:    "otel",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
	}
}

func flags(groups ...[]cli.Flag) []cli.Flag {
	var all []cli.Flag

	for _, group := range groups {
		all = append(all, group...)
	}

	return all
}

func limitsFrom(command *cli.Command) workflow.Limits {
	return workflow.Limits{
		MaxIterations: command.Int("max-iterations"),
		RunTimeout:    command.Duration("run-timeout"),
		ActionTimeout: command.Duration("action-timeout"),
	}
}

func collaboratorsFrom(command *cli.Command) cmd.CollaboratorConfig {
	config := cmd.CollaboratorConfig{
		ScriptsDisabled: command.Bool("scripts-disabled"),
		HTTPTimeout:     command.Duration("http-timeout"),
	}

	if host := command.String("smtp-host"); host != "" {
		config.SMTP = &mailer.SMTPConfig{
			Host:     host,
			Port:     command.Int("smtp-port"),
			Username: command.String("smtp-username"),
			Password: command.String("smtp-password"),
			From:     command.String("smtp-from"),
		}
	}

	if baseURL := command.String("generator-url"); baseURL != "" {
		config.Generator = &generator.ChatConfig{
			Name:         command.String("generator-name"),
			BaseURL:      baseURL,
			APIKey:       command.String("generator-api-key"),
			DefaultModel: command.String("generator-model"),
		}
	}

	return config
}
