package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"yqhp/kambo-hive/internal/config"
	"yqhp/kambo-hive/internal/executor"
	"yqhp/kambo-hive/internal/slave"
)

var (
	// worker 命令的 flags
	workerID          string
	workerHost        string
	workerGraphs      string
	workerStrategy    string
	workerNoDiscovery bool
)

// workerFlagPaths 把 flag 名映射为配置路径
var workerFlagPaths = map[string]string{
	"host":     "worker.host_address",
	"graphs":   "worker.graphs_dir",
	"strategy": "worker.strategy",
}

// workerCmd 是 worker 子命令
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "启动 worker 节点",
	Long: `启动 worker 节点，循环向 host 请求任务、执行计算并上报结果。

未指定 --host 时通过 UDP 广播发现 host。
连接断开后自动重连，正在执行的任务由 host 超时回收。`,
	Example: `  # 自动发现 host
  hive worker --graphs ./graphs

  # 直连 host
  hive worker --host 192.168.1.10:12345 --graphs ./graphs

  # 使用 dummy 策略联调
  hive worker --host 127.0.0.1:12345 --strategy dummy`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().StringVar(&workerID, "id", "", "Worker ID（默认自动生成）")
	workerCmd.Flags().StringVar(&workerHost, "host", "", "host 地址，为空则自动发现")
	workerCmd.Flags().StringVar(&workerGraphs, "graphs", "", "图文件目录")
	workerCmd.Flags().StringVar(&workerStrategy, "strategy", "heuristic", "计算策略")
	workerCmd.Flags().BoolVar(&workerNoDiscovery, "no-discovery", false, "禁用 UDP 发现")
}

func runWorker(cmd *cobra.Command, args []string) error {
	overrides := changedFlags(cmd, workerFlagPaths)
	if workerNoDiscovery {
		overrides["discovery.enabled"] = "false"
	}

	cfg, err := loadConfig(overrides)
	if err != nil {
		return err
	}
	if err := config.NewValidator().ValidateWorker(cfg); err != nil {
		return fmt.Errorf("配置无效: %w", err)
	}

	registry := executor.NewDefaultRegistry(cfg.Worker.GraphsDir)
	strategy, err := registry.Get(cfg.Worker.Strategy)
	if err != nil {
		return fmt.Errorf("%w (可用: %s)", err, strings.Join(registry.Names(), ", "))
	}

	workerCfg := slave.ConfigFrom(cfg)
	workerCfg.ID = workerID
	w := slave.NewWorker(workerCfg, strategy)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !quiet {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, Banner, Version)
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  Worker ID: %s\n", w.ID())
		fmt.Fprintf(out, "  计算策略: %s\n", strategy.Name())
		if cfg.Worker.HostAddress != "" {
			fmt.Fprintf(out, "  Host: %s\n", cfg.Worker.HostAddress)
		} else {
			fmt.Fprintln(out, "  Host: 自动发现")
		}
		fmt.Fprintln(out)
	}

	if err := w.Run(ctx); err != nil {
		return err
	}

	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Worker 已停止: 完成 %d, 失败 %d\n", w.Completed(), w.Failed())
	}
	return nil
}
