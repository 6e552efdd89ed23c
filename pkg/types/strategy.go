package types

import (
	"fmt"
	"strings"
)

// DistributionStrategy decides which pending task is handed out next.
type DistributionStrategy string

const (
	// StrategyFifo hands out the earliest queued task.
	StrategyFifo DistributionStrategy = "fifo"
	// StrategyLifo hands out the latest queued task.
	StrategyLifo DistributionStrategy = "lifo"
	// StrategyRandom hands out a uniformly chosen pending task.
	StrategyRandom DistributionStrategy = "random"
)

// ParseDistributionStrategy parses a case-insensitive strategy selector.
func ParseDistributionStrategy(s string) (DistributionStrategy, error) {
	switch DistributionStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyFifo:
		return StrategyFifo, nil
	case StrategyLifo:
		return StrategyLifo, nil
	case StrategyRandom:
		return StrategyRandom, nil
	default:
		return "", fmt.Errorf("invalid distribution strategy %q, use fifo, lifo or random", s)
	}
}

// IsValid reports whether s is a known strategy.
func (s DistributionStrategy) IsValid() bool {
	_, err := ParseDistributionStrategy(string(s))
	return err == nil
}
