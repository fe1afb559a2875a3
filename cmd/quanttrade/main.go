package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"quanttrade/internal/app"
	qtcfg "quanttrade/internal/config"
	"quanttrade/internal/logger"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "配置文件路径 (默认 configs/config.yaml)")
		mode    = flag.String("mode", "backtest", "运行模式: backtest | live | import")
	)
	flag.Parse()

	path := *cfgPath
	if path == "" {
		path = os.Getenv("QUANTTRADE_CONFIG")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	cfg, err := qtcfg.Load(path)
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
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功 (环境=%s, 模式=%s)", cfg.App.Env, *mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApp(cfg, app.Mode(*mode))
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}
	if err := a.Run(ctx); err != nil {
		log.Fatalf("运行失败: %v", err)
	}
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
	logger.SetOutput(file)
	return file, nil
}
