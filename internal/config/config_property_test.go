//go:build property
// +build property

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestPropertyConfigurationPrecedence checks that for any positive values,
// flags beat the config file, which beats the environment.
func TestPropertyConfigurationPrecedence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	dir := t.TempDir()

	properties.Property("flags > file > env for cache_capacity and fetch_timeout", prop.ForAll(
		func(envVal, fileVal, flagVal int) bool {
			clearEnv(t)
			_ = os.Setenv("CACHE_CAPACITY", fmt.Sprint(envVal))
			_ = os.Setenv("FETCH_TIMEOUT", fmt.Sprint(envVal))
			defer os.Unsetenv("CACHE_CAPACITY")
			defer os.Unsetenv("FETCH_TIMEOUT")

			path := filepath.Join(dir, "config.yaml")
			content := fmt.Sprintf("cache_capacity: %d\nfetch_timeout: %d\n", fileVal, fileVal)
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				return false
			}

			fromEnv, err := Load()
			if err != nil || fromEnv.CacheCapacity != envVal {
				return false
			}

			fromFile, err := LoadFromFile(path)
			if err != nil || fromFile.CacheCapacity != fileVal || fromFile.FetchTimeout != fileVal {
				return false
			}

			fromFlags, err := LoadWithFlags(path, map[string]interface{}{"cache_capacity": flagVal})
			if err != nil {
				return false
			}
			return fromFlags.CacheCapacity == flagVal && fromFlags.FetchTimeout == fileVal
		},
		gen.IntRange(1, 1000),
		gen.IntRange(1, 1000),
		gen.IntRange(1, 1000),
	))

	properties.TestingRun(t)
}
