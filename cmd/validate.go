package cmd

import (
	"github.com/kubev2v/vsphere-machinery/internal/config"
	"github.com/kubev2v/vsphere-machinery/internal/server"
	srvErrors "github.com/kubev2v/vsphere-machinery/pkg/errors"
)

// validateConnection checks what every command needs to reach the host.
func validateConnection(cfg *config.Configuration) error {
	if cfg.VSphere.Host == "" {
		return srvErrors.NewConfigurationError("vsphere-host must be set")
	}
	if cfg.VSphere.Port < 1 || cfg.VSphere.Port > 65535 {
		return srvErrors.NewConfigurationError("invalid vsphere-port: %d", cfg.VSphere.Port)
	}
	if cfg.VSphere.Username == "" {
		return srvErrors.NewConfigurationError("vsphere-username must be set")
	}
	if cfg.VSphere.Password == "" {
		return srvErrors.NewConfigurationError("vsphere-password must be set")
	}
	if cfg.Agent.MachinesFile == "" {
		return srvErrors.NewConfigurationError("machines-file must be set")
	}
	if cfg.Agent.TaskTimeout <= 0 {
		return srvErrors.NewConfigurationError("invalid task-timeout: %s", cfg.Agent.TaskTimeout)
	}
	return nil
}

func validateConfiguration(cfg *config.Configuration) error {
	if err := validateConnection(cfg); err != nil {
		return err
	}

	switch cfg.Server.ServerMode {
	case server.DevServer, server.ProductionServer:
	default:
		return srvErrors.NewConfigurationError("invalid server mode: %s", cfg.Server.ServerMode)
	}

	if cfg.Server.HTTPPort < 1 || cfg.Server.HTTPPort > 65535 {
		return srvErrors.NewConfigurationError("invalid http-port: %d", cfg.Server.HTTPPort)
	}

	if cfg.Agent.NumWorkers < 1 {
		return srvErrors.NewConfigurationError("invalid num-workers: %d", cfg.Agent.NumWorkers)
	}

	if cfg.Agent.DataFolder == "" {
		return srvErrors.NewConfigurationError("data-folder must be set")
	}

	if cfg.Agent.DumpFolder == "" {
		return srvErrors.NewConfigurationError("dump-folder must be set")
	}

	if cfg.Auth.Enabled && cfg.Auth.JWTFilePath == "" {
		return srvErrors.NewConfigurationError("authentication-jwt-filepath must be set when authentication is enabled")
	}

	return nil
}
