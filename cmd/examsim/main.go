// Command examsim plays one candidate against a running server: it begins or
// resumes an attempt, answers through the autosave coordinator and lets the
// countdown (or a manual submit) finalize it. The score subcommand runs the
// instrument scoring rules offline.
package main

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stemsi/psikotes-backend/internal/logger"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "examsim",
		Short:         "Candidate simulator for the psikotes backend",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := root.PersistentFlags()
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "pretty", "Log format (pretty, json)")

	root.AddCommand(runCmd(), scoreCmd())
	return root
}

// viperForCmd binds a command's flags and EXAMSIM_* environment variables to
// a fresh viper instance. An examsim.yaml in the working directory or
// $HOME/.config/examsim is read when present.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())
	_ = v.BindPFlags(cmd.InheritedFlags())

	v.SetEnvPrefix("EXAMSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examsim")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examsim")
	_ = v.ReadInConfig()

	return v
}

func setupLogging(v *viper.Viper) zerolog.Logger {
	log := logger.New(os.Stderr, v.GetString("log-level"), v.GetString("log-format"))
	if used := v.ConfigFileUsed(); used != "" {
		log.Info().Str("path", used).Msg("Loaded config file")
	}
	return log
}
