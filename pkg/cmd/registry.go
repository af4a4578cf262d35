// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/packflow/pkg/actions/aicontent"
	"github.com/dukex/packflow/pkg/actions/data"
	"github.com/dukex/packflow/pkg/actions/email"
	"github.com/dukex/packflow/pkg/actions/httprequest"
	logaction "github.com/dukex/packflow/pkg/actions/log"
	"github.com/dukex/packflow/pkg/actions/script"
	"github.com/dukex/packflow/pkg/actions/service"
	"github.com/dukex/packflow/pkg/actions/transform"
	"github.com/dukex/packflow/pkg/registry"
)

func registerActionPlugins(ctx context.Context, reg *registry.Registry, pluginsPath string) error {
	if pluginsPath == "" {
		return nil
	}

	actionPlugins, err := reg.LoadActionPlugins(ctx, pluginsPath)
	if err != nil {
		return fmt.Errorf("failed to load action plugins: %w", err)
	}

	for _, plugin := range actionPlugins {
		reg.RegisterAction(plugin)
	}

	return nil
}

func registerNativeActions(reg *registry.Registry) {
	for _, factory := range data.NewActionFactories() {
		reg.RegisterAction(factory)
	}

	reg.RegisterAction(email.NewActionFactory())
	reg.RegisterAction(httprequest.NewActionFactory())
	reg.RegisterAction(script.NewActionFactory())
	reg.RegisterAction(service.NewActionFactory())
	reg.RegisterAction(aicontent.NewActionFactory())
	reg.RegisterAction(transform.NewActionFactory())
	reg.RegisterAction(logaction.NewActionFactory())
}

// NewRegistry registers the native actions, then plugins, so a plugin may
// replace a native action type.
func NewRegistry(ctx context.Context, log *slog.Logger, pluginsPath string) (*registry.Registry, error) {
	reg := registry.NewRegistry(log)

	registerNativeActions(reg)

	if err := registerActionPlugins(ctx, reg, pluginsPath); err != nil {
		return nil, err
	}

	return reg, nil
}
