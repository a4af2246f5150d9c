package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/LJTian/GitCodeNews/internal/config"
	"github.com/LJTian/GitCodeNews/internal/processor"
	"github.com/LJTian/GitCodeNews/internal/runner"
	"github.com/LJTian/GitCodeNews/internal/storage"
	"github.com/spf13/cobra"
)

type collectFlags struct {
	config  string
	output  string
	retries int
	timeout time.Duration
	github  bool
	quiet   bool
}

func newRootCommand() *cobra.Command {
	var flags collectFlags

	cmd := &cobra.Command{
		Use:           "collect",
		Short:         "Fetch GitCode industry news once and write the JSON snapshot",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.config != "" {
				if err := os.Setenv("CONFIG_FILE", flags.config); err != nil {
					return err
				}
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := applyFlags(cmd, cfg, flags); err != nil {
				return err
			}

			var sinks []runner.Sink
			store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr)
			if err != nil {
				// 历史库不可用不影响快照文件
				log.Printf("warn: init store failed, continue without history: %v", err)
			} else if store.Enabled() {
				sinks = append(sinks, store)
			}

			run := runner.New(cfg.Fetchers(), processor.NewSimpleProcessor(), storage.NewJSONFile(cfg.OutputPath), sinks...)
			report, err := run.RunOnce(cmd.Context())
			if err != nil {
				return err
			}

			if !flags.quiet {
				fmt.Fprintln(cmd.OutOrStdout(), renderReport(report))
			}
			if report.Written {
				fmt.Fprintf(cmd.OutOrStdout(), "saved %d records to %s\n", report.Snapshot.Count(), cfg.OutputPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.config, "config", "c", "", "YAML configuration file (overrides CONFIG_FILE)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Snapshot output path")
	cmd.Flags().IntVar(&flags.retries, "retries", 0, "Maximum GitCode attempts")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "Per-attempt GitCode request timeout")
	cmd.Flags().BoolVar(&flags.github, "github", false, "Also collect GitHub Trending")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "Do not print the result table")

	return cmd
}

// applyFlags 命令行参数优先级最高，只覆盖显式传入的项
func applyFlags(cmd *cobra.Command, cfg *config.Config, flags collectFlags) error {
	if cmd.Flags().Changed("output") {
		cfg.OutputPath = flags.output
	}
	if cmd.Flags().Changed("retries") {
		cfg.GitCode.MaxRetries = flags.retries
	}
	if cmd.Flags().Changed("timeout") {
		cfg.GitCode.Timeout = flags.timeout
	}
	if cmd.Flags().Changed("github") {
		cfg.GitHubTrending.Enabled = flags.github
	}
	return cfg.Validate()
}
