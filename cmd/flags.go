package cmd

import (
	"github.com/spf13/pflag"

	"github.com/kubev2v/vsphere-machinery/internal/config"
)

func registerVSphereFlags(fs *pflag.FlagSet, cfg *config.Configuration) {
	fs.StringVar(&cfg.VSphere.Host, "vsphere-host", cfg.VSphere.Host, "vSphere host name or address")
	fs.IntVar(&cfg.VSphere.Port, "vsphere-port", cfg.VSphere.Port, "vSphere API port")
	fs.StringVar(&cfg.VSphere.Username, "vsphere-username", cfg.VSphere.Username, "vSphere user")
	fs.StringVar(&cfg.VSphere.Password, "vsphere-password", cfg.VSphere.Password, "vSphere password")
	fs.BoolVar(&cfg.VSphere.Insecure, "vsphere-insecure", cfg.VSphere.Insecure, "skip verification of the host certificate")
	fs.StringVar(&cfg.VSphere.PrivilegeUser, "vsphere-privilege-user", cfg.VSphere.PrivilegeUser, "check this principal holds the required privileges on every machine")
}

func registerAgentFlags(fs *pflag.FlagSet, cfg *config.Configuration) {
	fs.StringVar(&cfg.Agent.MachinesFile, "machines-file", cfg.Agent.MachinesFile, "YAML file listing the analysis machines")
	fs.DurationVar(&cfg.Agent.TaskTimeout, "task-timeout", cfg.Agent.TaskTimeout, "maximum wait for a host task")
}

func registerServerFlags(fs *pflag.FlagSet, cfg *config.Configuration) {
	fs.IntVar(&cfg.Server.HTTPPort, "server-http-port", cfg.Server.HTTPPort, "port on which the HTTP server is listening")
	fs.StringVar(&cfg.Server.ServerMode, "server-mode", cfg.Server.ServerMode, "server mode: dev or prod (prod serves TLS)")
	fs.StringVar(&cfg.Agent.DataFolder, "data-folder", cfg.Agent.DataFolder, "folder holding the machinery database")
	fs.StringVar(&cfg.Agent.DumpFolder, "dump-folder", cfg.Agent.DumpFolder, "folder API memory dumps are written to")
	fs.IntVar(&cfg.Agent.NumWorkers, "num-workers", cfg.Agent.NumWorkers, "number of concurrent memory dumps")
	fs.BoolVar(&cfg.Auth.Enabled, "authentication-enabled", cfg.Auth.Enabled, "require a bearer token on the API")
	fs.StringVar(&cfg.Auth.JWTFilePath, "authentication-jwt-filepath", cfg.Auth.JWTFilePath, "file holding the HS256 token secret")
}
