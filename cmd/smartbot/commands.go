package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"smartbot/internal/app"
	"smartbot/internal/config"
	"smartbot/internal/engine"
	"smartbot/internal/logger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler loop with the status API",
	Long: `Run trading cycles aligned to bar closes during the regular session,
close out positions before the bell and serve the read-only status API.
The config file is watched; threshold changes apply from the next cycle.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cleanup, err := loadConfig()
		if err != nil {
			return err
		}
		defer cleanup()

		watcher, err := config.Watch(configPath)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		a, err := app.NewApp(ctx, watcher.Current(), appOptions(app.WithConfigWatcher(watcher))...)
		if err != nil {
			return fmt.Errorf("初始化应用失败: %w", err)
		}
		defer a.Close()
		return a.Run(ctx)
	},
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single trading cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			res, err := a.RunOnce(ctx)
			if jsonOutput {
				if perr := printJSON(res); perr != nil {
					return perr
				}
			}
			return err
		})
	},
}

var eodCmd = &cobra.Command{
	Use:   "eod",
	Short: "Close out the day's positions now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			res, err := a.EOD(ctx)
			if err != nil {
				return err
			}
			fmt.Println(strings.Join(res.Lines(), "\n"))
			return nil
		})
	},
}

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Print what the bot has learned",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			fmt.Println(a.Insights())
			return nil
		}, app.WithoutLock())
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the brain from the trade journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			n, err := a.Seed(ctx)
			if err != nil {
				return err
			}
			logger.Infof("已回灌 %d 笔历史交易", n)
			return nil
		})
	},
}

func withApp(fn func(context.Context, *app.App) error, opts ...app.AppBuilderOption) error {
	cfg, cleanup, err := loadConfig()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()
	a, err := app.NewApp(ctx, cfg, appOptions(opts...)...)
	if err != nil {
		return fmt.Errorf("初始化应用失败: %w", err)
	}
	defer a.Close()
	return fn(ctx, a)
}

func appOptions(opts ...app.AppBuilderOption) []app.AppBuilderOption {
	if dryRun {
		opts = append(opts, app.WithDryRun())
	}
	return opts
}

func printJSON(res engine.CycleResult) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
