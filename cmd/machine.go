package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kubev2v/vsphere-machinery/internal/config"
	"github.com/kubev2v/vsphere-machinery/internal/models"
	"github.com/kubev2v/vsphere-machinery/pkg/vmware"
)

// NewMachineCommand groups the one-shot machine operations. Each invocation
// works on a throwaway journal so it never contends with a running server
// for the database.
func NewMachineCommand(cfg *config.Configuration) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "machine",
		Short: "Operate a single analysis machine",
	}

	registerVSphereFlags(cmd.PersistentFlags(), cfg)
	registerAgentFlags(cmd.PersistentFlags(), cfg)

	cmd.AddCommand(
		machineListCommand(cfg),
		machineStatusCommand(cfg),
		machineStartCommand(cfg),
		machineStopCommand(cfg),
		machineDumpCommand(cfg),
	)

	return cmd
}

// withEnvironment validates the connection settings and runs fn against a
// freshly built environment.
func withEnvironment(cfg *config.Configuration, fn func(cmd *cobra.Command, env *environment, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := validateConnection(cfg); err != nil {
			return err
		}

		env, err := newEnvironment(cmd.Context(), cfg, ":memory:")
		if err != nil {
			return err
		}
		defer env.Close()

		return fn(cmd, env, args)
	}
}

func machineListCommand(cfg *config.Configuration) *cobra.Command {
	var namesOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the machines on the host",
		Args:  cobra.NoArgs,
		RunE: withEnvironment(cfg, func(cmd *cobra.Command, env *environment, _ []string) error {
			if namesOnly {
				labels, err := env.machinery.List(cmd.Context())
				if err != nil {
					return err
				}
				printLabels(cmd.OutOrStdout(), labels)
				return nil
			}

			machines, err := env.machinery.Machines(cmd.Context())
			if err != nil {
				return err
			}
			return printMachines(cmd.OutOrStdout(), machines)
		}),
	}
	cmd.Flags().BoolVar(&namesOnly, "names", false, "print only the machine names, without querying power states")

	return cmd
}

// printLabels writes one machine name per line, in host order.
func printLabels(w io.Writer, labels []string) {
	for _, label := range labels {
		fmt.Fprintln(w, label)
	}
}

func machineStatusCommand(cfg *config.Configuration) *cobra.Command {
	return &cobra.Command{
		Use:   "status LABEL",
		Short: "Print the power state of a machine",
		Args:  cobra.ExactArgs(1),
		RunE: withEnvironment(cfg, func(cmd *cobra.Command, env *environment, args []string) error {
			state, err := env.machinery.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", args[0], powerStateColor(string(state)).Sprint(state))
			return nil
		}),
	}
}

func machineStartCommand(cfg *config.Configuration) *cobra.Command {
	return &cobra.Command{
		Use:   "start LABEL",
		Short: "Revert a machine to its baseline snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: withEnvironment(cfg, func(cmd *cobra.Command, env *environment, args []string) error {
			if err := env.machinery.Start(cmd.Context(), args[0]); err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "machine %s started\n", args[0])
			return nil
		}),
	}
}

func machineStopCommand(cfg *config.Configuration) *cobra.Command {
	return &cobra.Command{
		Use:   "stop LABEL",
		Short: "Power a machine off",
		Args:  cobra.ExactArgs(1),
		RunE: withEnvironment(cfg, func(cmd *cobra.Command, env *environment, args []string) error {
			if err := env.machinery.Stop(cmd.Context(), args[0]); err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "machine %s stopped\n", args[0])
			return nil
		}),
	}
}

func machineDumpCommand(cfg *config.Configuration) *cobra.Command {
	return &cobra.Command{
		Use:   "dump LABEL PATH",
		Short: "Write the memory image of a running machine to PATH",
		Args:  cobra.ExactArgs(2),
		RunE: withEnvironment(cfg, func(cmd *cobra.Command, env *environment, args []string) error {
			n, err := env.machinery.DumpMemory(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", n, args[1])
			return nil
		}),
	}
}

func printMachines(w io.Writer, machines []models.MachineStatus) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tPOWER\tSNAPSHOT\tREGISTERED")
	for _, m := range machines {
		snapshot := m.Snapshot
		if snapshot == "" {
			snapshot = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", m.Label, powerStateColor(m.PowerState).Sprint(m.PowerState), snapshot, m.Registered)
	}
	return tw.Flush()
}

func powerStateColor(state string) *color.Color {
	switch vmware.PowerState(state) {
	case vmware.PowerStatePoweredOn:
		return color.New(color.FgGreen)
	case vmware.PowerStateSuspended:
		return color.New(color.FgYellow)
	case vmware.PowerStatePoweredOff:
		return color.New(color.FgRed)
	default:
		return color.New(color.Faint)
	}
}
