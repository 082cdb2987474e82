package main

import (
	"context"
	"os"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/kubev2v/vsphere-machinery/cmd"
	"github.com/kubev2v/vsphere-machinery/internal/config"
)

func main() {
	cfg := config.NewConfigurationWithOptionsAndDefaults()

	root := cmd.NewRootCommand(cfg)
	root.AddCommand(
		cmd.NewRunCommand(cfg),
		cmd.NewCheckCommand(cfg),
		cmd.NewMachineCommand(cfg),
	)

	err := root.ExecuteContext(context.Background())
	_ = zap.L().Sync()
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
