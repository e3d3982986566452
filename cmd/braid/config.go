package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/braidlog/braid/internal/model"
	"github.com/braidlog/braid/internal/socketrpc"

	"github.com/spf13/viper"
)

const (
	defaultBindHost      = "127.0.0.1"
	defaultAPIPort       = 8787
	defaultBatchSize     = model.DefaultBatchSize
	defaultChunkMaxLines = model.DefaultChunkMaxLines
	defaultWarmupPerFile = model.DefaultWarmupPerFileLimit
	defaultWarmupTarget  = model.DefaultWarmupTarget
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	MergedDir          string `mapstructure:"merged-dir"`
	BatchSize          int    `mapstructure:"batch-size"`
	ChunkMaxLines      int64  `mapstructure:"chunk-max-lines"`
	WarmupPerFileLimit int64  `mapstructure:"warmup-per-file-limit"`
	WarmupTarget       int64  `mapstructure:"warmup-target"`
	APIEnabled         bool   `mapstructure:"api-enabled"`
	APIPort            int    `mapstructure:"api-port"`
	APIAddr            string `mapstructure:"api-addr"`
	SocketPath         string `mapstructure:"socket-path"`
	ConfigPath         string `mapstructure:"-"` // not from config file
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	defaultMergedDir := filepath.Join(home, ".local", "share", "braid", "merged")

	v := viper.New()
	v.SetEnvPrefix("BRAID")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("merged-dir", defaultMergedDir)
	v.SetDefault("batch-size", defaultBatchSize)
	v.SetDefault("chunk-max-lines", defaultChunkMaxLines)
	v.SetDefault("warmup-per-file-limit", defaultWarmupPerFile)
	v.SetDefault("warmup-target", defaultWarmupTarget)
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		defaultConfigPath := filepath.Join(home, ".config", "braid", "config.yml")
		v.SetConfigFile(defaultConfigPath)
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return cfg, fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}
	if cfg.BatchSize <= 0 {
		return cfg, fmt.Errorf("invalid batch-size: %d", cfg.BatchSize)
	}
	if cfg.ChunkMaxLines <= 0 {
		return cfg, fmt.Errorf("invalid chunk-max-lines: %d", cfg.ChunkMaxLines)
	}

	// Expand ~ in merged-dir
	if strings.HasPrefix(cfg.MergedDir, "~/") {
		cfg.MergedDir = filepath.Join(home, cfg.MergedDir[2:])
	}

	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.APIPort))
	}

	return cfg, nil
}
