package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/soyeahso/chatrelay/internal/config"
	"github.com/soyeahso/chatrelay/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	paths     config.Paths
	log       *logging.Logger
	logCloser io.Closer
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatrelay",
		Short: "Chat relay with transcript delivery",
		Long: "chatrelay streams model replies to chat clients, keeps each conversation's transcript, " +
			"and after every turn persists, renders, uploads and schedules a mail notification for it.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}

			opts := logging.Options{Level: "info"}
			if cfg, err := config.Load(paths.Config); err == nil {
				opts = logging.Options{
					Level:        cfg.Logging.Level,
					ConsoleStyle: cfg.Logging.ConsoleStyle,
					File:         cfg.Logging.File,
				}
			}
			if logLevel != "" {
				opts.Level = logLevel
			}
			log, logCloser, err = logging.NewFromOptions(opts)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCloser != nil {
				logCloser.Close()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.chatrelay/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newSessionsCmd())
	cmd.AddCommand(newAuthCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

// loadConfig reads and validates the config file. Model provider settings
// are only checked when requireLLM is set.
func loadConfig(requireLLM bool) (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	var issues []config.ValidationIssue
	for _, issue := range config.Validate(&cfg) {
		if !requireLLM && strings.HasPrefix(issue.Path, "llm.") {
			continue
		}
		issues = append(issues, issue)
	}
	if len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	return cfg, nil
}
