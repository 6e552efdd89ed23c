// Package config provides property-based tests for configuration precedence.
package config

import (
	"strconv"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestOverridePrecedenceProperty checks that an explicit override always wins
// over the YAML value, whatever the two values are.
func TestOverridePrecedenceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("override beats file value", prop.ForAll(
		func(fileTrials, flagTrials int, ageSeconds int) bool {
			yamlDoc := "host:\n  trials: " + strconv.Itoa(fileTrials) + "\n"
			cfg, err := ParseConfig([]byte(yamlDoc))
			if err != nil || cfg.Host.Trials != fileTrials {
				return false
			}

			err = setConfigValue(cfg, "host.trials", strconv.Itoa(flagTrials))
			if err != nil {
				return false
			}
			err = setConfigValue(cfg, "host.max_assignment_age", strconv.Itoa(ageSeconds)+"s")
			if err != nil {
				return false
			}
			return cfg.Host.Trials == flagTrials &&
				cfg.Host.MaxAssignmentAge == time.Duration(ageSeconds)*time.Second
		},
		gen.IntRange(1, 1000),
		gen.IntRange(1, 1000),
		gen.IntRange(1, 3600),
	))

	properties.TestingRun(t)
}
