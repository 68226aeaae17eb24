package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"hedgesim/internal/app"
	hscfg "hedgesim/internal/config"
	"hedgesim/internal/logger"
)

func main() {
	cfgPath := os.Getenv("HEDGESIM_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := hscfg.Load(cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("初始化日志文件失败: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.Infof("✓ 配置加载成功（model=%s, policy=%s）", cfg.Simulation.Model, cfg.Policy.Name)

	a, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := dispatch(ctx, a, os.Args[1], os.Args[2:]); err != nil {
		log.Fatalf("运行失败: %v", err)
	}
}

func dispatch(ctx context.Context, a *app.App, cmd string, args []string) error {
	switch cmd {
	case "train":
		fs := flag.NewFlagSet("train", flag.ExitOnError)
		resume := fs.String("resume", "", "从指定 run 的最新检查点恢复")
		if err := fs.Parse(args); err != nil {
			return err
		}
		res, err := a.RunTrain(ctx, *resume)
		if err != nil {
			return err
		}
		logger.Infof("训练完成: run=%s episodes=%d mean_reward=%.4f", res.RunID, res.Episodes, res.MeanReward)
		return nil
	case "eval":
		fs := flag.NewFlagSet("eval", flag.ExitOnError)
		run := fs.String("run", "", "评估前恢复到指定训练 run 的最新检查点")
		if err := fs.Parse(args); err != nil {
			return err
		}
		rep, err := a.RunEval(ctx, *run)
		if err != nil {
			return err
		}
		logger.Infof("评估完成: report=%s policies=%d", rep.ID, len(rep.Policies))
		return nil
	case "import":
		if len(args) != 1 {
			return fmt.Errorf("用法: hedgesim import <observations.json>")
		}
		n, err := a.RunImport(ctx, args[0])
		if err != nil {
			return err
		}
		logger.Infof("导入完成: %d 条观测", n)
		return nil
	default:
		usage()
		return fmt.Errorf("未知子命令 %q", cmd)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `用法: hedgesim <train|eval|import> [参数]

  train [-resume RUN_ID]   训练策略，周期性写检查点
  eval  [-run RUN_ID]      评估策略并与基线对比，输出报告与图表
  import <file.json>       导入历史观测供 replay 模型使用

配置文件路径由 HEDGESIM_CONFIG 指定，默认 configs/config.yaml`)
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
