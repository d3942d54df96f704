package di

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-rpc-query/rpcquery"
)

// ParseConfig decodes a YAML document on top of rpcquery.DefaultConfig.
// Durations use Go duration strings ("30s", "5m").
func ParseConfig(data []byte) (rpcquery.Config, error) {
	config := rpcquery.DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return rpcquery.Config{}, fmt.Errorf("di: decode config: %w", err)
	}
	if config.Mode == "" {
		config.Mode = rpcquery.ModeClient
	}
	return config, nil
}

// LoadConfig reads and decodes the YAML configuration file at path.
func LoadConfig(path string) (rpcquery.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return rpcquery.Config{}, fmt.Errorf("di: read config: %w", err)
	}
	return ParseConfig(data)
}
