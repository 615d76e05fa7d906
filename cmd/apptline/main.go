package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"apptline/internal/config"
	appLog "apptline/internal/log"
)

const version = "0.3.0"

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	dump       bool
	debug      bool
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags flagConfig

	cmd := &cobra.Command{
		Use:           "apptline",
		Short:         "Live appointment timeline for clinic resources",
		Long:          "apptline fetches appointment feeds, lays them out on an hourly grid and serves the result over HTTP and WebSocket.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err := run(ctx, flags)
			if err != nil {
				appLog.Error("apptline failed", err)
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.configPath, "config", "./apptline.yaml", "path to config file")
	f.StringVar(&flags.listen, "listen", "", "HTTP listen address (overrides config)")
	f.BoolVar(&flags.once, "once", false, "refresh every board once, print the layouts as JSON and exit")
	f.BoolVar(&flags.dump, "dump", false, "with --once, also capture the preview PNG")
	f.BoolVar(&flags.debug, "debug", false, "enable debug logging")

	return cmd
}

func run(ctx context.Context, flags flagConfig) error {
	conf, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Setup(os.Stderr, appLog.Format(conf.LogFormat))
	level := appLog.ParseLevel(conf.LogLevel)
	if flags.debug {
		level = appLog.LevelDebug
	}
	appLog.SetLevel(level)

	appLog.Info("apptline starting",
		"version", version,
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"span_hours", conf.SpanHours,
		"refresh", conf.RefreshCron,
		"resources", len(conf.Resources),
		"split_across_buckets", conf.SplitAcrossBuckets,
		"once", flags.once,
		"dump", flags.dump,
	)

	a, err := newApp(conf)
	if err != nil {
		return err
	}

	if flags.once {
		return a.runOnce(ctx, os.Stdout, flags.dump)
	}
	return a.serve(ctx)
}
