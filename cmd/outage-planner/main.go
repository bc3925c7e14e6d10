package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"gearline/internal/config"
	"gearline/internal/outage"
)

const defaultOutagePath = "fallas_estaciones.csv"

type options struct {
	configPath string
	out        string
	seed       int64
	seedSet    bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := pflag.NewFlagSet("outage-planner", pflag.ContinueOnError)
	fs.StringVarP(&o.configPath, "config", "c", "", "配置文件路径 (默认在当前目录查找 config.yaml)")
	fs.StringVarP(&o.out, "out", "o", defaultOutagePath, "停机计划 CSV 输出路径")
	fs.Int64Var(&o.seed, "seed", 0, "随机种子，覆盖 outages.seed")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	o.seedSet = fs.Changed("seed")
	return o, nil
}

// main 是停机计划生成器的入口
func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "outage-planner")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, logger); err != nil {
		logger.Error("生成停机计划失败", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, logger *slog.Logger) error {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	settings, err := cfg.OutageSettings()
	if err != nil {
		return err
	}

	seed := time.Now().UnixNano()
	switch {
	case opts.seedSet:
		seed = opts.seed
	case cfg.Outages.Seed != nil:
		seed = *cfg.Outages.Seed
	}

	planner, err := outage.NewPlanner(settings, rand.New(rand.NewSource(seed)), logger)
	if err != nil {
		return err
	}
	logger.Info("开始生成停机计划", "seed", seed, "start", settings.Start, "end", settings.End, "stations", len(settings.Stations))

	failures, err := planner.Plan(ctx)
	if err != nil {
		return err
	}
	if len(failures) == 0 {
		logger.Warn("未生成任何故障，不输出 CSV")
		return nil
	}

	f, err := os.Create(opts.out)
	if err != nil {
		return err
	}
	if err := outage.WriteCSV(f, failures); err != nil {
		f.Close()
		return fmt.Errorf("写入停机计划 CSV 失败: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Info("CSV 已生成", "path", opts.out, "failures", len(failures))
	return nil
}
