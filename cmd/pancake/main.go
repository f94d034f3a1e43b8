package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/neurodesk/pancake/pkg/batch"
	"github.com/neurodesk/pancake/pkg/config"
	"github.com/neurodesk/pancake/pkg/logging"
	"github.com/neurodesk/pancake/pkg/pancake"
	"github.com/neurodesk/pancake/pkg/watch"
)

var rootConfigPath string
var verbose bool

var rootCmd = cobra.Command{
	Use:           "pancake",
	Short:         "Flatten Django template inheritance into standalone templates",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// settings loads the configuration and builds the logger shared by every
// command.
func settings() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(rootConfigPath)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	logger, err := logging.NewLogger(os.Stderr, cfg.Logging)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

func newParser(cmd *cobra.Command, cfg config.Config) (*pancake.Parser, error) {
	dirs, err := cmd.Flags().GetStringArray("dir")
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		dirs = []string{cfg.InputDir}
	}
	p := pancake.NewParser(pancake.NewDirLoader(dirs...))
	p.Strict = cfg.Strict
	if cmd.Flags().Changed("strict") {
		if p.Strict, err = cmd.Flags().GetBool("strict"); err != nil {
			return nil, err
		}
	}
	return p, nil
}

var flattenCmd = cobra.Command{
	Use:   "flatten NAME",
	Short: "Flatten one template and print the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := settings()
		if err != nil {
			return err
		}
		p, err := newParser(cmd, cfg)
		if err != nil {
			return err
		}
		out, err := p.Flatten(args[0])
		if err != nil {
			return err
		}

		output, _ := cmd.Flags().GetString("output")
		if output == "" || output == "-" {
			_, err := fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		}
		if err := batch.WriteFile(output, out); err != nil {
			return err
		}
		logger.Info().Str("template", args[0]).Str("output", output).Msg("Flattened template")
		return nil
	},
}

var treeCmd = cobra.Command{
	Use:   "tree NAME",
	Short: "Print the parsed tree of a template and its ancestors",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := settings()
		if err != nil {
			return err
		}
		p, err := newParser(cmd, cfg)
		if err != nil {
			return err
		}
		t, err := p.Parse(args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), pancake.Pretty(t))
		return err
	},
}

// buildOptions merges the configuration with the positional arguments and
// flags of the build and watch commands.
func buildOptions(cmd *cobra.Command, args []string, cfg config.Config, logger zerolog.Logger) (batch.Options, error) {
	if len(args) > 0 {
		cfg.InputDir = args[0]
	}
	if len(args) > 1 {
		cfg.OutputDir = args[1]
	}
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("strict") {
		cfg.Strict, _ = flags.GetBool("strict")
	}
	if flags.Changed("ext") {
		cfg.Extensions, _ = flags.GetStringArray("ext")
	}
	if flags.Changed("keep-going") {
		cfg.KeepGoing, _ = flags.GetBool("keep-going")
	}
	if err := cfg.Validate(); err != nil {
		return batch.Options{}, err
	}

	opts := batch.Options{
		InputDir:   cfg.InputDir,
		OutputDir:  cfg.OutputDir,
		Strict:     cfg.Strict,
		Workers:    cfg.WorkerCount(),
		Extensions: cfg.Extensions,
		KeepGoing:  cfg.KeepGoing,
		Logger:     logger,
		Metrics:    metrics.NewRegistry(),
	}
	if cfg.CacheSize > 0 {
		tokens, err := pancake.NewTokenCache(cfg.CacheSize)
		if err != nil {
			return opts, err
		}
		opts.Tokens = tokens
	}
	return opts, nil
}

var buildCmd = cobra.Command{
	Use:   "build [INPUT [OUTPUT]]",
	Short: "Flatten every template below INPUT into OUTPUT",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := settings()
		if err != nil {
			return err
		}
		opts, err := buildOptions(cmd, args, cfg, logger)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, err := batch.Run(ctx, opts)
		timer := metrics.GetOrRegisterTimer(batch.MetricsKeyDuration, opts.Metrics)
		logger.Debug().
			Dur("mean", time.Duration(timer.Mean())).
			Dur("max", time.Duration(timer.Max())).
			Msg("Flatten timings")
		if err != nil {
			for name, ferr := range report.Failed {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", name, ferr)
			}
			return err
		}
		return nil
	},
}

var watchCmd = cobra.Command{
	Use:   "watch [INPUT [OUTPUT]]",
	Short: "Build, then rebuild whenever a template changes",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := settings()
		if err != nil {
			return err
		}
		opts, err := buildOptions(cmd, args, cfg, logger)
		if err != nil {
			return err
		}
		// Failures in one template must not stop the others from updating.
		opts.KeepGoing = true

		w, err := watch.New(opts)
		if err != nil {
			return err
		}
		defer w.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		logger.Info().Str("input", opts.InputDir).Str("output", opts.OutputDir).Msg("Watching for changes")
		return w.Run(ctx)
	},
}

func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().Int("workers", 0, "Number of templates flattened in parallel (0 means one per CPU)")
	cmd.Flags().Bool("strict", false, "Fail on include and extends forms that cannot be inlined")
	cmd.Flags().StringArray("ext", nil, "Only flatten files with this extension (repeatable)")
	cmd.Flags().Bool("keep-going", false, "Continue after a template fails")
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", config.DefaultPath, "Path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	for _, cmd := range []*cobra.Command{&flattenCmd, &treeCmd} {
		cmd.Flags().StringArray("dir", nil, "Template directory to search (repeatable, searched in order)")
		cmd.Flags().Bool("strict", false, "Fail on include and extends forms that cannot be inlined")
	}
	flattenCmd.Flags().StringP("output", "o", "", "Write the result to this file instead of stdout")
	rootCmd.AddCommand(&flattenCmd)
	rootCmd.AddCommand(&treeCmd)

	addBuildFlags(&buildCmd)
	rootCmd.AddCommand(&buildCmd)
	addBuildFlags(&watchCmd)
	rootCmd.AddCommand(&watchCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "pancake: %v\n", err)
		os.Exit(1)
	}
}
