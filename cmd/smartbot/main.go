package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"smartbot/internal/config"
	"smartbot/internal/logger"
)

var (
	configPath string
	dryRun     bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "smartbot",
	Short: "SmartBot momentum trading bot for US equities",
	Long: `SmartBot scores a ticker universe on intraday momentum, sizes entries with
an adaptive risk budget and a learned per-ticker filter, and manages exits
through a broker REST API.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to config file (env "+config.EnvConfigPath+")")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Log decisions without placing orders")
	onceCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the cycle report as JSON")

	rootCmd.AddCommand(runCmd, onceCmd, eodCmd, insightsCmd, seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig 读取配置并把日志同时写到 stdout 与 app.log_path。
func loadConfig() (*config.Config, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置失败: %w", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志文件失败: %w", err)
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功（环境=%s，券商=%s，dry_run=%v）", cfg.App.Env, cfg.Broker.Mode, cfg.Trading.DryRun || dryRun)
	cleanup := func() {
		if logFile != nil {
			_ = logFile.Close()
		}
	}
	return cfg, cleanup, nil
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

// signalContext is cancelled on SIGINT/SIGTERM so a running cycle can unwind.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
