package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kubev2v/vsphere-machinery/internal/config"
	srvErrors "github.com/kubev2v/vsphere-machinery/pkg/errors"
)

func NewCheckCommand(cfg *config.Configuration) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check every registered machine is ready to be reverted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateConnection(cfg); err != nil {
				return err
			}

			env, err := newEnvironment(cmd.Context(), cfg, ":memory:")
			if err != nil {
				return err
			}
			defer env.Close()

			machines, err := env.store.Machines().List(cmd.Context())
			if err != nil {
				return err
			}

			return reportCheck(cmd.OutOrStdout(), len(machines), env.machinery.Check(cmd.Context()))
		},
	}

	registerVSphereFlags(cmd.Flags(), cfg)
	registerAgentFlags(cmd.Flags(), cfg)

	return cmd
}

// reportCheck prints the outcome of a machine check. Host failures are
// returned untouched.
func reportCheck(w io.Writer, total int, err error) error {
	if err == nil {
		color.New(color.FgGreen).Fprintf(w, "all %d machines ready\n", total)
		return nil
	}

	problems := unjoin(err)
	for _, p := range problems {
		if !srvErrors.IsConfigurationError(p) {
			return err
		}
	}

	red := color.New(color.FgRed)
	for _, p := range problems {
		red.Fprintf(w, "✗ %v\n", p)
	}
	return fmt.Errorf("%d of %d machines misconfigured", len(problems), total)
}

func unjoin(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
