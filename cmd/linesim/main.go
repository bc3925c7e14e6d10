package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"gearline/internal/config"
	"gearline/internal/engine"
	"gearline/internal/event"
	"gearline/internal/handlers"
	"gearline/internal/persistence"
	"gearline/internal/report"
	"gearline/internal/station"
	"gearline/internal/timeline"
	"gearline/internal/types"
	"gearline/internal/util"
	"gearline/internal/web"
)

const defaultTimelinePath = "timeline_produccion.csv"

// logLevel 在加载配置后按 log_level 调整
var logLevel = new(slog.LevelVar)

// options 是命令行参数
type options struct {
	configPath  string
	out         string
	journal     string
	summaryYAML string
	fromJournal string
	serve       string
	seed        int64
	seedSet     bool
	quiet       bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := pflag.NewFlagSet("linesim", pflag.ContinueOnError)
	fs.StringVarP(&o.configPath, "config", "c", "", "配置文件路径 (默认在当前目录查找 config.yaml)")
	fs.StringVarP(&o.out, "out", "o", defaultTimelinePath, "时间线 CSV 输出路径，为空时不输出")
	fs.StringVar(&o.journal, "journal", "", "同时把时间线写入 JSON Lines 日志")
	fs.StringVar(&o.summaryYAML, "summary-yaml", "", "把统计结果导出为 YAML")
	fs.StringVar(&o.fromJournal, "from-journal", "", "不运行仿真，从已有日志生成报告")
	fs.StringVar(&o.serve, "serve", "", "仿真结束后继续在该地址提供 /metrics、/ws 与 /api (例如 :8080)")
	fs.Int64Var(&o.seed, "seed", 0, "随机种子，覆盖配置文件中的 seed")
	fs.BoolVarP(&o.quiet, "quiet", "q", false, "不在控制台打印报告")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	o.seedSet = fs.Changed("seed")
	if fs.Changed("from-journal") && !fs.Changed("out") {
		o.out = ""
	}
	return o, nil
}

// main 是应用程序的主入口
func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.fromJournal != "" {
		err = replay(opts, logger)
	} else {
		err = simulate(ctx, opts, logger)
	}
	if err != nil {
		logger.Error("运行失败", "error", err)
		os.Exit(1)
	}
}

// simulate 加载配置、运行仿真并输出结果；--serve 时在仿真结束后继续提供查询服务直到收到停机信号
func simulate(ctx context.Context, opts options, logger *slog.Logger) error {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	logLevel.Set(cfg.SlogLevel())

	// 种子在运行前确定，以便写入日志元数据
	seed := time.Now().UnixNano()
	switch {
	case opts.seedSet:
		seed = opts.seed
	case cfg.Seed != nil:
		seed = *cfg.Seed
	}
	cfg.Seed = &seed

	runID := util.NewRunID()
	ctx = util.ContextWithRunID(ctx, runID)
	// 引擎从 ctx 中读取运行 ID，其余组件使用带 run_id 的日志器
	engineLogger := logger
	logger = logger.With("run_id", runID)

	bus := event.NewBus()
	var (
		hub     *web.Hub
		tracker *web.StateTracker
		live    *timeline.Log
	)
	if opts.serve != "" {
		hub = web.NewHub(logger)
		tracker = web.NewStateTracker(hub)
		live = timeline.NewLog(nil)
		bus.SubscribeAll(func(e event.Event) {
			if e.Record != nil {
				live.Append(*e.Record)
			}
		})
	}
	handlers.RegisterEventHandlers(bus, tracker, logger)

	if opts.journal != "" {
		journal, err := persistence.CreateJournal(opts.journal, persistence.RunInfo{RunID: runID, Seed: seed})
		if err != nil {
			return fmt.Errorf("创建运行日志失败: %w", err)
		}
		defer func() {
			if err := journal.Close(); err != nil {
				logger.Error("关闭运行日志失败", "error", err)
			}
		}()
		bus.SubscribeAll(journal.Handler(logger))
	}

	engOpts, err := cfg.EngineOptions(bus, engineLogger)
	if err != nil {
		return err
	}
	eng, err := engine.New(engOpts)
	if err != nil {
		return err
	}

	if opts.serve == "" {
		res, err := eng.Run(ctx)
		if err != nil {
			return err
		}
		return writeOutputs(opts, res, eng.IsInspection, logger)
	}

	g, gctx := errgroup.WithContext(ctx)
	srv := &http.Server{Addr: opts.serve, Handler: web.NewMux(hub, tracker, live, logger)}

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("API 服务器启动", "addr", opts.serve)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API 服务器启动失败: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("接收到停机信号，正在优雅关闭...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		res, err := eng.Run(gctx)
		if err != nil {
			return err
		}
		if err := writeOutputs(opts, res, eng.IsInspection, logger); err != nil {
			return err
		}
		logger.Info("仿真已完成，继续提供查询服务，按 Ctrl+C 退出")
		return nil
	})
	return g.Wait()
}

// replay 从运行日志生成报告，不运行仿真
func replay(opts options, logger *slog.Logger) error {
	rule := station.DefaultInspectionRule
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		logger.Warn("未能加载配置，使用默认检验工站规则", "error", err)
	} else {
		rule = cfg.InspectionRule
	}
	inspection, err := station.CompileInspectionRule(rule)
	if err != nil {
		return err
	}

	run, records, err := persistence.ReadJournal(opts.fromJournal)
	if err != nil {
		return fmt.Errorf("读取运行日志失败: %w", err)
	}
	res := &engine.Result{RunID: run.RunID, Seed: run.Seed, Records: records}
	if n := len(records); n > 0 {
		res.SimMinutes = records[n-1].SimMinutes
	}
	return writeOutputs(opts, res, inspection.IsInspection, logger)
}

// writeOutputs 输出时间线 CSV、控制台报告与 YAML 统计
func writeOutputs(opts options, res *engine.Result, isInspection func(string) bool, logger *slog.Logger) error {
	if opts.out != "" {
		if err := writeFile(opts.out, func(w io.Writer) error { return timeline.WriteCSV(w, res.Records) }); err != nil {
			return fmt.Errorf("写入时间线 CSV 失败: %w", err)
		}
		logger.Info("CSV 已生成", "path", opts.out, "records", len(res.Records))
	}

	doc := report.Document{
		Run: report.Run{
			RunID:      res.RunID,
			Seed:       res.Seed,
			Records:    len(res.Records),
			SimMinutes: res.SimMinutes,
			FinishedAt: finishedAt(res.Records),
		},
		Summary:  timeline.Summarize(res.Records, isInspection),
		Stations: res.Stations,
	}
	if !opts.quiet {
		if err := report.Render(os.Stdout, doc); err != nil {
			return err
		}
	}
	if opts.summaryYAML != "" {
		if err := writeFile(opts.summaryYAML, func(w io.Writer) error { return report.WriteYAML(w, doc) }); err != nil {
			return err
		}
		logger.Info("统计结果已导出", "path", opts.summaryYAML)
	}
	return nil
}

func finishedAt(records []types.Record) string {
	if len(records) == 0 {
		return ""
	}
	return records[len(records)-1].Timestamp.Format(timeline.TimestampLayout)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
