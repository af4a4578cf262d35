package cmd

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/packflow/pkg/generator"
	"github.com/dukex/packflow/pkg/mailer"
	"github.com/dukex/packflow/pkg/protocol"
	scriptrunner "github.com/dukex/packflow/pkg/script"
	"github.com/dukex/packflow/pkg/services"
	"github.com/go-playground/validator/v10"
)

// CollaboratorConfig selects the collaborator implementations handed to runs.
type CollaboratorConfig struct {
	SMTP            *mailer.SMTPConfig
	Generator       *generator.ChatConfig
	ScriptsDisabled bool
	HTTPTimeout     time.Duration
}

// NewDependencies builds the collaborators every run shares. Without SMTP
// settings mail is logged, and without a generator endpoint prompts are echoed.
func NewDependencies(logger *slog.Logger, store protocol.DataStore, config CollaboratorConfig) (protocol.Dependencies, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	httpClient := &http.Client{Timeout: config.HTTPTimeout}

	deps := protocol.Dependencies{
		Logger: logger,
		Store:  store,
		HTTP:   httpClient,
	}

	if config.SMTP != nil {
		if err := validate.Struct(config.SMTP); err != nil {
			return deps, err
		}

		deps.Mailer = mailer.NewSMTPMailer(*config.SMTP, logger)
	} else {
		deps.Mailer = mailer.NewLogMailer(logger)
	}

	router := generator.NewRouter()

	if config.Generator != nil {
		if err := validate.Struct(config.Generator); err != nil {
			return deps, err
		}

		router.Register(config.Generator.Name, generator.NewChatGenerator(*config.Generator, httpClient, logger))
	}

	router.Register("echo", generator.Echo{})
	deps.Generator = router

	if !config.ScriptsDisabled {
		deps.Scripts = scriptrunner.NewRunner(logger)
	}

	serviceRegistry := services.NewRegistry(logger)
	services.RegisterWebhook(serviceRegistry)
	deps.Services = serviceRegistry

	return deps, nil
}
