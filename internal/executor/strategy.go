package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"yqhp/kambo-hive/pkg/types"
)

// ComputeStrategy 将任务转换为结果的可插拔算法。
// 执行可以任意耗时，调用方不会中途打断。
type ComputeStrategy interface {
	// Name 返回策略名称，用于注册和配置
	Name() string

	// Execute 执行任务并返回结果
	Execute(ctx context.Context, task *types.Task, workerID string) (*types.TaskResult, error)
}

// Registry 管理计算策略的注册和查找。
type Registry struct {
	strategies map[string]ComputeStrategy
	mu         sync.RWMutex
}

// NewRegistry 创建一个新的策略注册表。
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]ComputeStrategy),
	}
}

// NewDefaultRegistry 创建包含内置策略的注册表。
func NewDefaultRegistry(graphsDir string) *Registry {
	r := NewRegistry()
	r.MustRegister(NewHeuristicStrategy(graphsDir))
	r.MustRegister(NewDummyStrategy(0))
	return r
}

// Register 注册策略，名称重复时返回错误。
func (r *Registry) Register(strategy ComputeStrategy) error {
	if strategy == nil {
		return fmt.Errorf("不能注册空策略")
	}

	name := strategy.Name()
	if name == "" {
		return fmt.Errorf("策略名称不能为空")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.strategies[name]; exists {
		return fmt.Errorf("策略已注册: %s", name)
	}

	r.strategies[name] = strategy
	return nil
}

// MustRegister 注册策略，如果出错则 panic。
func (r *Registry) MustRegister(strategy ComputeStrategy) {
	if err := r.Register(strategy); err != nil {
		panic(err)
	}
}

// Get 按名称获取策略，不存在时返回错误。
func (r *Registry) Get(name string) (ComputeStrategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	strategy, ok := r.strategies[name]
	if !ok {
		return nil, NewStrategyNotFoundError(name)
	}
	return strategy, nil
}

// Names 返回所有已注册的策略名称（已排序）。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SafeExecute 执行策略并将 panic 转换为 EXECUTION_ERROR，保证 worker 进程不会因策略失败而退出。
func SafeExecute(ctx context.Context, strategy ComputeStrategy, task *types.Task, workerID string) (result *types.TaskResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = NewExecutionError(task.ID, fmt.Sprintf("策略 %s 发生 panic: %v", strategy.Name(), rec), nil)
		}
	}()

	result, err = strategy.Execute(ctx, task, workerID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, NewExecutionError(task.ID, "策略未返回结果", nil)
	}
	return result, nil
}
