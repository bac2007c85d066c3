package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/keagan/momentforge/internal/batch"
	"github.com/keagan/momentforge/internal/config"
	"github.com/keagan/momentforge/internal/keyframes"
	"github.com/keagan/momentforge/internal/logging"
	"github.com/keagan/momentforge/internal/pipeline"
	"github.com/keagan/momentforge/internal/report"
	"github.com/keagan/momentforge/internal/scheduler"
	"github.com/keagan/momentforge/pkg/util"
)

var (
	cfgFile string
	verbose bool

	keyframeStrategy string
	keyframeInterval float64
	cronSpec         string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "momentforge",
	Short: "momentforge - keyframe moment extraction for video retrieval",
	Long:  "Detects shots in dataset videos, samples keyframes and writes one analysis report of searchable moments per video.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(verbose)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		cmd.SetContext(config.WithConfig(cmd.Context(), cfg))
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	keyframesCmd.Flags().StringVar(&keyframeStrategy, "strategy", "", "override keyframes.strategy (middle, start, end, boundary, all)")
	keyframesCmd.Flags().Float64Var(&keyframeInterval, "interval", -1, "override keyframes.interval_seconds (0 disables)")
	scheduleCmd.Flags().StringVar(&cronSpec, "cron", "", "cron schedule with seconds (default: batch.cron_schedule)")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(keyframesCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(configCmd)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [video ids...]",
	Short: "Analyze videos (all discovered videos when no id is given)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.FromContext(ctx)

		app, err := newApp(ctx, log.Logger, cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		ids := args
		if len(ids) == 0 {
			if ids, err = app.runner.Discover(); err != nil {
				return err
			}
		}
		if len(ids) == 0 {
			log.Warn().Str("root", cfg.Dataset.RootDir).Msg("no videos found")
			return nil
		}

		summary, err := app.runner.Run(ctx, ids)
		printSummary(cmd, summary)
		return err
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered videos and the status of their last report",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		layout := pipeline.NewLayout(cfg.Dataset)

		ids, err := batch.NewRunner(log.Logger, nil, cfg.Dataset, 1).Discover()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, id := range ids {
			status := "not analysed"
			if r, err := report.Read(layout.Video(id).Report()); err == nil {
				status = fmt.Sprintf("%s (%d keyframes, %s)", r.Status, r.KeyframeCount, r.ProcessingDate)
			}
			fmt.Fprintf(out, "%s\t%s\n", id, status)
		}
		return nil
	},
}

var keyframesCmd = &cobra.Command{
	Use:   "keyframes <video id>",
	Short: "Run shot detection and print the selected keyframe timestamps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.FromContext(ctx)

		exec, err := newExecutor(log.Logger, cfg)
		if err != nil {
			return err
		}

		paths := pipeline.NewLayout(cfg.Dataset).Video(args[0])
		if !util.FileExists(paths.Source) {
			return fmt.Errorf("%w: %s", pipeline.ErrMissingSource, paths.Source)
		}

		info, err := exec.ProbeVideo(ctx, paths.Source)
		if err != nil {
			return err
		}

		tmpDir, err := os.MkdirTemp("", "momentforge-keyframes-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmpDir)

		detection, err := exec.DetectShotBoundaries(ctx, paths.Source, filepath.Join(tmpDir, paths.ShotLogName))
		if err != nil {
			return err
		}

		opts := keyframes.Options{
			Strategy:       keyframes.Strategy(cfg.Keyframes.Strategy),
			BoundaryOffset: cfg.Keyframes.BoundaryOffset,
			FixedInterval:  cfg.Keyframes.Interval,
		}
		if keyframeStrategy != "" {
			opts.Strategy = keyframes.Strategy(keyframeStrategy)
		}
		if keyframeInterval >= 0 {
			opts.FixedInterval = keyframeInterval
		}
		selector := keyframes.NewSelector(log.Logger, opts)
		timestamps := selector.Select(detection.Boundaries, info.Duration, info.FPS)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "duration %s, %.3f fps, %d boundaries, strategy %s\n",
			util.FormatSeconds(info.Duration), info.FPS, len(detection.Boundaries), selector.Options().Strategy)
		for _, ts := range timestamps {
			fmt.Fprintf(out, "%s\t%.3f\n", util.FormatSeconds(ts), ts)
		}
		return nil
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Re-analyze the whole dataset on a cron schedule",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.FromContext(ctx)

		spec := cronSpec
		if spec == "" {
			spec = cfg.Batch.CronSchedule
		}

		app, err := newApp(ctx, log.Logger, cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		s, err := scheduler.New(log.Logger, spec, func(jobCtx context.Context) {
			ids, err := app.runner.Discover()
			if err != nil {
				log.Error().Err(err).Msg("discovery failed")
				return
			}
			if _, err := app.runner.Run(jobCtx, ids); err != nil {
				log.Warn().Err(err).Msg("scheduled batch interrupted")
			}
		})
		if err != nil {
			return err
		}

		s.Run(ctx, 30*time.Second)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration to a file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if util.FileExists(path) {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

func printSummary(cmd *cobra.Command, s batch.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d videos in %s\n", s.RunID, s.Total, s.Elapsed.Round(time.Millisecond))
	for _, status := range []report.Status{
		report.StatusWithKeyframes,
		report.StatusNoKeyframes,
		report.StatusFailed,
		batch.StatusUnwritten,
	} {
		if n := s.ByStatus[status]; n > 0 {
			fmt.Fprintf(out, "  %-26s %d\n", status, n)
		}
	}
	if s.Skipped > 0 {
		fmt.Fprintf(out, "  %-26s %d\n", "skipped", s.Skipped)
	}
}
