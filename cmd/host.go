package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yqhp/kambo-hive/api/rest"
	"yqhp/kambo-hive/internal/config"
	"yqhp/kambo-hive/internal/discovery"
	"yqhp/kambo-hive/internal/master"
	"yqhp/kambo-hive/pkg/logger"
)

var (
	// host 命令的 flags
	hostBind             string
	hostAdvertise        string
	hostGraphs           string
	hostReport           string
	hostStrategy         string
	hostTrials           int
	hostMaxAttempts      int
	hostSnapshot         string
	hostSnapshotInterval time.Duration
	hostRedis            string
	hostStatus           string
	hostNoDiscovery      bool
)

// hostFlagPaths 把 flag 名映射为配置路径
var hostFlagPaths = map[string]string{
	"bind":              "host.bind_address",
	"advertise":         "host.advertise_address",
	"graphs":            "host.graphs_dir",
	"report":            "host.report_path",
	"strategy":          "host.strategy",
	"trials":            "host.trials",
	"max-attempts":      "host.max_attempts",
	"snapshot":          "snapshot.path",
	"snapshot-interval": "snapshot.interval",
	"redis":             "snapshot.redis_addr",
	"status":            "status.address",
}

// hostCmd 是 host 子命令
var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "启动 host 节点",
	Long: `启动 host 节点：为图目录下每个图生成指定次数的试验任务，
通过 TCP 分发给 worker，所有任务结束后写出最终报告并退出。

host 同时负责：
  - 在 UDP 2901 端口响应 worker 的发现请求
  - 定期保存结果快照（文件或 Redis）
  - 回收长时间未完成的任务`,
	Example: `  # 使用默认配置启动
  hive host --graphs ./graphs

  # 指定分发策略和快照
  hive host --graphs ./graphs --strategy random --snapshot snapshot.json --snapshot-interval 1m

  # 开启状态 API
  hive host --graphs ./graphs --status :8080`,
	RunE: runHost,
}

func init() {
	rootCmd.AddCommand(hostCmd)

	hostCmd.Flags().StringVar(&hostBind, "bind", "0.0.0.0:12345", "任务服务监听地址")
	hostCmd.Flags().StringVar(&hostAdvertise, "advertise", "", "通过发现协议告知 worker 的地址")
	hostCmd.Flags().StringVar(&hostGraphs, "graphs", "", "图文件目录")
	hostCmd.Flags().StringVar(&hostReport, "report", "final_report.json", "最终报告路径")
	hostCmd.Flags().StringVar(&hostStrategy, "strategy", "fifo", "任务分发策略 (fifo, lifo, random)")
	hostCmd.Flags().IntVar(&hostTrials, "trials", 10, "每个图的试验次数")
	hostCmd.Flags().IntVar(&hostMaxAttempts, "max-attempts", 0, "单个任务的最大尝试次数，0 表示不限")
	hostCmd.Flags().StringVar(&hostSnapshot, "snapshot", "", "快照文件路径")
	hostCmd.Flags().DurationVar(&hostSnapshotInterval, "snapshot-interval", 5*time.Minute, "快照保存间隔")
	hostCmd.Flags().StringVar(&hostRedis, "redis", "", "快照写入的 Redis 地址")
	hostCmd.Flags().StringVar(&hostStatus, "status", "", "状态 API 监听地址，为空则不启用")
	hostCmd.Flags().BoolVar(&hostNoDiscovery, "no-discovery", false, "禁用 UDP 发现响应")
}

func runHost(cmd *cobra.Command, args []string) error {
	overrides := changedFlags(cmd, hostFlagPaths)
	if hostNoDiscovery {
		overrides["discovery.enabled"] = strconv.FormatBool(false)
	}

	cfg, err := loadConfig(overrides)
	if err != nil {
		return err
	}
	if err := config.NewValidator().ValidateHost(cfg); err != nil {
		return fmt.Errorf("配置无效: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks, closeSinks, err := master.BuildSinks(ctx, cfg.Snapshot)
	if err != nil {
		return fmt.Errorf("初始化快照存储失败: %w", err)
	}
	defer closeSinks()

	host, err := master.NewHost(cfg, nil, sinks...)
	if err != nil {
		return err
	}

	taskConfig, err := master.TaskConfig(cfg.Compute)
	if err != nil {
		return fmt.Errorf("序列化计算配置失败: %w", err)
	}
	graphs, err := host.SeedFromDir(cfg.Host.GraphsDir, cfg.Host.Trials, taskConfig)
	if err != nil {
		return err
	}

	if err := host.Listen(); err != nil {
		return err
	}
	advertise := discovery.AdvertiseAddress(cfg.Host.AdvertiseAddress, host.Addr())

	if cfg.Discovery.Enabled {
		responder := discovery.NewResponder(fmt.Sprintf(":%d", cfg.Discovery.Port), advertise)
		if err := responder.Listen(); err != nil {
			// 发现不可用时 worker 仍可通过 --host 直连
			logger.Warn("发现服务不可用", zap.Error(err))
		} else {
			host.AddService(responder)
		}
	}
	if cfg.Status.Address != "" {
		statusCfg := rest.DefaultConfig()
		statusCfg.Address = cfg.Status.Address
		host.AddService(rest.NewServer(host.Queue(), host.Registry(), host.Results(), statusCfg))
	}

	if !quiet {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, Banner, Version)
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  任务服务: %s (advertise %s)\n", host.Addr(), advertise)
		fmt.Fprintf(out, "  图数量: %d, 每图试验: %d, 任务总数: %d\n", len(graphs), cfg.Host.Trials, host.Queue().TotalTasks())
		fmt.Fprintf(out, "  分发策略: %s\n", cfg.Host.Strategy)
		fmt.Fprintln(out)
	}

	report, err := host.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("host 已中断，未生成最终报告")
			return nil
		}
		return err
	}

	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "全部任务完成: %d 个结果, %d 个失败, 报告写入 %s\n",
			report.TotalResultsCollected, report.FailedTasks, cfg.Host.ReportPath)
	}
	return nil
}
