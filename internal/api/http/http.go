package http

import (
	"github.com/gpufleet/fleet/internal/auth"
	"github.com/gpufleet/fleet/internal/commands"
	"github.com/gpufleet/fleet/internal/registry"
	"github.com/gpufleet/fleet/internal/telemetry"
	"github.com/gpufleet/fleet/internal/users"
)

type Config struct {
	Port uint `mapstructure:"port"`
}

// Services collects everything the router needs to wire up handlers.
type Services struct {
	Registry  *registry.Service
	Commands  *commands.Service
	Telemetry *telemetry.Service
	Users     *users.Service
	JWT       auth.Config
}
