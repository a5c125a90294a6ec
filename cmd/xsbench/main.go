package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jimmicro/version"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jjd27/xenstore-clients/internal/xsbench"
	"github.com/jjd27/xenstore-clients/internal/xsbench/config"
)

type rootOptions struct {
	path       string
	count      int
	rounds     int
	verbose    bool
	configFile string
	store      string
	listen     string
	prefix     string
}

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run benchmark")
	}
}

// NewRootCommand 创建 xsbench 命令
func NewRootCommand() *cobra.Command {
	return newRootCommand(&rootOptions{})
}

func newRootCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "xsbench",
		Short: "Benchmark xenstored with simulated domain lifecycles",
		Long: `xsbench drives xenstored through the node layout a toolstack writes
when it creates and destroys domains with their virtual devices, and reports
the elapsed seconds of three workloads:

  sequential start and shutdown of domains 0..n
  parallel start and shutdown of domains 0..n
  repeated reads of every domain name

Example:
  xsbench -n 300 -r 100
  xsbench --store memory -n 10 --listen 127.0.0.1:9100`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cmd, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.path, "path", "", "xenstored socket path")
	flags.IntVarP(&opts.count, "count", "n", 300, "number of simulated domains")
	flags.IntVarP(&opts.rounds, "rounds", "r", 100, "number of query rounds")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.configFile, "config", "", "YAML config file")
	flags.StringVar(&opts.store, "store", config.StoreSocket, "store backend (socket|memory)")
	flags.StringVar(&opts.listen, "listen", "", "status API listen address")
	flags.StringVar(&opts.prefix, "prefix", "", "subtree holding every benchmark node")

	return cmd
}

// loadConfig 按默认值、环境变量、配置文件、命令行参数的顺序合并配置
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}
	if opts.configFile != "" {
		if err := cfg.LoadFile(opts.configFile); err != nil {
			return nil, err
		}
	}

	// 只有显式指定的参数覆盖配置
	flags := cmd.Flags()
	if flags.Changed("path") {
		cfg.StorePath = opts.path
	}
	if flags.Changed("count") {
		cfg.Count = opts.count
	}
	if flags.Changed("rounds") {
		cfg.Rounds = opts.rounds
	}
	if flags.Changed("verbose") {
		cfg.Verbose = opts.verbose
	}
	if flags.Changed("store") {
		cfg.Store = opts.store
	}
	if flags.Changed("listen") {
		cfg.Listen = opts.listen
	}
	if flags.Changed("prefix") {
		cfg.Prefix = opts.prefix
	}
	return cfg, nil
}

func run(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := xsbench.SetupLogger(cfg.Verbose)
	ctx = logger.WithContext(ctx)

	server, err := xsbench.New(ctx, cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() {
		if err := server.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close store client")
		}
	}()

	return server.Run(ctx)
}
