package slave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"yqhp/kambo-hive/internal/config"
	"yqhp/kambo-hive/internal/discovery"
	"yqhp/kambo-hive/internal/executor"
	"yqhp/kambo-hive/pkg/logger"
)

// State 表示 worker 的运行状态。
type State string

const (
	// StateConnecting 正在连接 host
	StateConnecting State = "connecting"
	// StateIdle 空闲，正在请求任务
	StateIdle State = "idle"
	// StateExecuting 正在执行任务
	StateExecuting State = "executing"
	// StateReporting 正在上报结果
	StateReporting State = "reporting"
	// StateDisconnected 连接断开，等待重连
	StateDisconnected State = "disconnected"
	// StateStopped 已停止
	StateStopped State = "stopped"
)

// Config 保存 worker 节点的配置信息。
type Config struct {
	// ID 是此 worker 的唯一标识符，为空时自动生成。
	ID string

	// HostAddress 是 host 地址，为空时通过 UDP 发现。
	HostAddress string

	// DiscoveryTarget 是发现请求的目标地址（通常是广播地址:2901）。
	DiscoveryTarget string

	// DiscoveryTimeout 是等待发现响应的超时时间。
	DiscoveryTimeout time.Duration

	// HeartbeatInterval 是心跳发送间隔。
	HeartbeatInterval time.Duration

	// IdleBackoff 是没有任务时的重试间隔。
	IdleBackoff time.Duration

	// ReconnectBackoff 是重连的初始间隔，每次失败翻倍。
	ReconnectBackoff time.Duration

	// MaxReconnectDelay 是重连间隔上限。
	MaxReconnectDelay time.Duration

	// DialTimeout 是建立连接的超时时间。
	DialTimeout time.Duration

	// RequestTimeout 是单次请求往返的超时时间。
	RequestTimeout time.Duration

	// MaxFrameSize 是单条消息的最大字节数。
	MaxFrameSize int
}

// DefaultConfig 返回默认的 worker 配置。
func DefaultConfig() *Config {
	return &Config{
		DiscoveryTarget:   discovery.BroadcastTarget("255.255.255.255", discovery.DefaultPort),
		DiscoveryTimeout:  5 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		IdleBackoff:       2 * time.Second,
		ReconnectBackoff:  time.Second,
		MaxReconnectDelay: 30 * time.Second,
		DialTimeout:       5 * time.Second,
		RequestTimeout:    30 * time.Second,
	}
}

// ConfigFrom 从进程配置构建 worker 配置。
func ConfigFrom(cfg *config.Config) *Config {
	c := &Config{
		HostAddress:       cfg.Worker.HostAddress,
		DiscoveryTimeout:  cfg.Discovery.Timeout,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
		IdleBackoff:       cfg.Worker.IdleBackoff,
		ReconnectBackoff:  cfg.Worker.ReconnectBackoff,
		MaxReconnectDelay: cfg.Worker.MaxReconnectDelay,
		DialTimeout:       cfg.Worker.DialTimeout,
		RequestTimeout:    cfg.Worker.RequestTimeout,
		MaxFrameSize:      cfg.Host.MaxFrameSize,
	}
	if cfg.Discovery.Enabled {
		c.DiscoveryTarget = discovery.BroadcastTarget(cfg.Discovery.BroadcastAddress, cfg.Discovery.Port)
	}
	return c
}

// Worker 拉取任务、执行计算策略并上报结果。
// 执行中的任务在断线时直接放弃，由 host 的过期回收重新分配。
type Worker struct {
	config   *Config
	strategy executor.ComputeStrategy
	log      *zap.Logger

	// 状态管理
	state  atomic.Value // State
	client atomic.Pointer[Client]

	// 统计
	completed atomic.Int64
	failed    atomic.Int64
}

// NewWorker 创建一个新的 worker。
func NewWorker(config *Config, strategy executor.ComputeStrategy) *Worker {
	if config == nil {
		config = DefaultConfig()
	}
	if config.ID == "" {
		config.ID = uuid.NewString()
	}

	w := &Worker{
		config:   config,
		strategy: strategy,
		log:      logger.Named("slave").With(zap.String("worker", config.ID)),
	}
	w.state.Store(StateStopped)
	return w
}

// ID 返回 worker 标识。
func (w *Worker) ID() string {
	return w.config.ID
}

// State 返回当前状态。
func (w *Worker) State() State {
	return w.state.Load().(State)
}

// Completed 返回已成功上报的任务数。
func (w *Worker) Completed() int64 {
	return w.completed.Load()
}

// Failed 返回执行失败的任务数。
func (w *Worker) Failed() int64 {
	return w.failed.Load()
}

// Run 运行 worker 直到 ctx 取消。
// 只有在没有配置 host 地址且发现失败时返回错误。
func (w *Worker) Run(ctx context.Context) error {
	addr, err := w.resolveHost(ctx)
	if err != nil {
		w.setState(StateStopped)
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.heartbeatLoop(ctx)
	}()
	defer func() {
		wg.Wait()
		w.setState(StateStopped)
		w.log.Info("worker 已停止",
			zap.Int64("completed", w.completed.Load()),
			zap.Int64("failed", w.failed.Load()))
	}()

	backoff := w.config.ReconnectBackoff
	for ctx.Err() == nil {
		w.setState(StateConnecting)
		client, err := Dial(ctx, addr, w.config.DialTimeout, w.config.RequestTimeout, w.config.MaxFrameSize)
		if err != nil {
			w.setState(StateDisconnected)
			w.log.Warn("连接 host 失败", zap.String("host", addr), zap.Duration("retry_in", backoff), zap.Error(err))
			if !sleepCtx(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff, w.config.MaxReconnectDelay)
			addr = w.rediscover(ctx, addr)
			continue
		}

		backoff = w.config.ReconnectBackoff
		w.log.Info("已连接 host", zap.String("host", addr))
		err = w.serve(ctx, client)
		if ctx.Err() != nil {
			return nil
		}

		w.setState(StateDisconnected)
		w.log.Warn("与 host 的连接断开", zap.String("host", addr), zap.Error(err))
		if !sleepCtx(ctx, backoff) {
			return nil
		}
	}
	return nil
}

// serve 在一条连接上循环拉取并执行任务，直到传输出错或 ctx 取消。
func (w *Worker) serve(ctx context.Context, client *Client) error {
	w.client.Store(client)
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer func() {
		stop()
		w.client.Store(nil)
		client.Close()
	}()

	for ctx.Err() == nil {
		w.setState(StateIdle)
		task, err := client.RequestTask(w.config.ID)
		if err != nil {
			return err
		}
		if task == nil {
			if !sleepCtx(ctx, w.config.IdleBackoff) {
				return ctx.Err()
			}
			continue
		}

		w.setState(StateExecuting)
		w.log.Info("开始执行任务", zap.String("task", task.ID), zap.String("graph", task.GraphID), zap.Int("run", task.RunNumber))

		// 计算不会被中途打断，进程退出时由 host 回收
		result, execErr := executor.SafeExecute(context.WithoutCancel(ctx), w.strategy, task, w.config.ID)

		w.setState(StateReporting)
		if execErr != nil {
			w.failed.Add(1)
			w.log.Error("任务执行失败", zap.String("task", task.ID), zap.Error(execErr))
			if err := client.ReportFailure(w.config.ID, task.ID, execErr.Error()); err != nil {
				return err
			}
			continue
		}

		result.TaskID = task.ID
		result.GraphID = task.GraphID
		result.WorkerID = w.config.ID
		if err := client.ReportResult(w.config.ID, result); err != nil {
			return err
		}
		w.completed.Add(1)
		w.log.Info("任务结果已上报",
			zap.String("task", task.ID),
			zap.Float64("fitness", result.Fitness),
			zap.Uint64("processing_ms", result.ProcessingTimeMs))
	}
	return ctx.Err()
}

// heartbeatLoop 定期向 host 发送心跳，与任务循环相互独立。
func (w *Worker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sendHeartbeat()
		}
	}
}

// sendHeartbeat 通过当前连接发送心跳，未连接时跳过。
func (w *Worker) sendHeartbeat() {
	client := w.client.Load()
	if client == nil {
		return
	}
	if err := client.Heartbeat(w.config.ID); err != nil {
		w.log.Debug("心跳发送失败", zap.Error(err))
	}
}

// resolveHost 返回配置的 host 地址，未配置时通过 UDP 发现。
func (w *Worker) resolveHost(ctx context.Context) (string, error) {
	if w.config.HostAddress != "" {
		return w.config.HostAddress, nil
	}
	if w.config.DiscoveryTarget == "" {
		return "", fmt.Errorf("未配置 host 地址且发现已禁用")
	}

	w.log.Info("正在发现 host", zap.String("target", w.config.DiscoveryTarget))
	addr, err := discovery.Discover(ctx, w.config.DiscoveryTarget, w.config.DiscoveryTimeout)
	if err != nil {
		return "", fmt.Errorf("发现 host 失败: %w", err)
	}
	w.log.Info("发现 host", zap.String("host", addr))
	return addr, nil
}

// rediscover 在使用发现模式时重新查找 host，失败时保留原地址。
func (w *Worker) rediscover(ctx context.Context, current string) string {
	if w.config.HostAddress != "" || w.config.DiscoveryTarget == "" {
		return current
	}
	addr, err := discovery.Discover(ctx, w.config.DiscoveryTarget, w.config.DiscoveryTimeout)
	if err != nil {
		if !errors.Is(err, discovery.ErrDiscoveryTimeout) {
			w.log.Debug("重新发现 host 失败", zap.Error(err))
		}
		return current
	}
	return addr
}

func (w *Worker) setState(s State) {
	w.state.Store(s)
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

// sleepCtx 睡眠 d，ctx 取消时提前返回 false。
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
