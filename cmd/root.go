package cmd

import (
	"strings"

	"github.com/go-extras/cobraflags"
	"github.com/jzelinskie/cobrautil/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kubev2v/vsphere-machinery/internal/config"
	srvErrors "github.com/kubev2v/vsphere-machinery/pkg/errors"
)

// EnvPrefix prefixes the environment variables every flag can be set from:
// --vsphere-host is read from MACHINERY_VSPHERE_HOST.
const EnvPrefix = "MACHINERY"

func NewRootCommand(cfg *config.Configuration) *cobra.Command {
	root := &cobra.Command{
		Use:           "vsphere-machinery",
		Short:         "Drive snapshot-based analysis machines on a vSphere host",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: cobrautil.CommandStack(
			bindEnvironment,
			setupLogging(cfg),
		),
	}

	root.PersistentFlags().StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "log format (console, json)")

	return root
}

func bindEnvironment(cmd *cobra.Command, _ []string) error {
	viper.AutomaticEnv()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	cobraflags.PresetRequiredFlags(EnvPrefix, make(map[*pflag.Flag]bool), cmd)
	return nil
}

func setupLogging(cfg *config.Configuration) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, _ []string) error {
		logger, err := newLogger(cfg.Log)
		if err != nil {
			return err
		}
		zap.ReplaceGlobals(logger)
		return nil
	}
}

func newLogger(cfg config.Log) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, srvErrors.NewConfigurationError("invalid log-level %q", cfg.Level)
	}

	var zc zap.Config
	switch cfg.Format {
	case "json":
		zc = zap.NewProductionConfig()
	case "console":
		zc = zap.NewDevelopmentConfig()
		zc.Development = false
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, srvErrors.NewConfigurationError("invalid log-format %q", cfg.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}
