// Package cmd 提供 hive CLI 的命令实现
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"yqhp/kambo-hive/internal/config"
	"yqhp/kambo-hive/pkg/logger"
)

const (
	// Version 是当前版本号
	Version = "0.1.0"
	// Banner 是启动时显示的 ASCII 艺术
	Banner = `
    __  ___
   / / / (_)   _____   Hive %s
  / /_/ / / | / / _ \
 / __  / /| |/ /  __/
/_/ /_/_/ |___/\___/
`
)

var (
	// 全局配置
	cfgFile string
	debug   bool
	quiet   bool
)

// rootCmd 是根命令
var rootCmd = &cobra.Command{
	Use:   "hive",
	Short: "分布式图计算试验调度",
	Long: `hive 在一台 host 上把 (图, 试验次数) 展开成任务队列，
由局域网内的 worker 拉取执行并回报结果，全部完成后生成汇总报告。`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute 执行根命令
func Execute() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	// 全局 flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "启用调试日志")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "静默模式")

	// 禁用默认的 completion 命令
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// 自定义版本模板
	rootCmd.SetVersionTemplate(fmt.Sprintf(Banner, Version) + "\n")
}

// GetRootCmd 返回根命令（用于测试）
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// loadConfig 按 默认值 < 配置文件 < 环境变量 < 命令行 的顺序加载配置，并初始化日志
func loadConfig(overrides map[string]string) (*config.Config, error) {
	loader := config.NewLoader().WithCmdArgs(overrides)
	if cfgFile != "" {
		loader = loader.WithConfigPath(cfgFile)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	logger.Init(&logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
	})
	return cfg, nil
}

// changedFlags 收集显式设置过的 flag，映射为配置路径
func changedFlags(cmd *cobra.Command, paths map[string]string) map[string]string {
	overrides := make(map[string]string)
	for flag, path := range paths {
		f := cmd.Flags().Lookup(flag)
		if f != nil && f.Changed {
			overrides[path] = f.Value.String()
		}
	}
	return overrides
}
