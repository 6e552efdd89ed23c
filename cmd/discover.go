package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"yqhp/kambo-hive/internal/discovery"
)

var (
	// discover 命令的 flags
	discoverTarget  string
	discoverTimeout time.Duration
)

// discoverCmd 是 discover 子命令
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "在局域网内查找 host",
	Long:  `发送一次 UDP 发现广播并打印第一个响应的 host 地址。`,
	Example: `  hive discover
  hive discover --target 192.168.1.255:2901 --timeout 2s`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().StringVar(&discoverTarget, "target",
		discovery.BroadcastTarget("255.255.255.255", discovery.DefaultPort), "发现请求的目标地址")
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 5*time.Second, "等待响应的超时时间")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	addr, err := discovery.Discover(ctx, discoverTarget, discoverTimeout)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), addr)
	return nil
}
