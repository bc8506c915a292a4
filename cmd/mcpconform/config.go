package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/coderag/mcpconform/internal/logctx"
	"github.com/coderag/mcpconform/proc"
)

// envConfig carries ambient defaults; CLI flags override per invocation.
type envConfig struct {
	StepTimeout    time.Duration `env:"MCPCONFORM_STEP_TIMEOUT,default=5s"`
	SettleDelay    time.Duration `env:"MCPCONFORM_SETTLE_DELAY,default=100ms"`
	ShutdownGrace  time.Duration `env:"MCPCONFORM_SHUTDOWN_GRACE,default=5s"`
	RelayChunkSize int           `env:"MCPCONFORM_RELAY_CHUNK,default=1024"`
	LogLevel       string        `env:"MCPCONFORM_LOG_LEVEL,default=info"`
}

func loadEnvConfig() (envConfig, error) {
	var cfg envConfig
	if err := envdecode.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	base := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logctx.Handler{Handler: base})
}

// serverList is a repeatable -server flag: name=executable arg...
type serverList struct {
	configs []proc.ServerConfig
}

func (s *serverList) String() string {
	names := make([]string, len(s.configs))
	for i, c := range s.configs {
		names[i] = c.Name
	}
	return strings.Join(names, ",")
}

func (s *serverList) Set(v string) error {
	name, rest, ok := strings.Cut(v, "=")
	if !ok || name == "" || strings.TrimSpace(rest) == "" {
		return fmt.Errorf("expected name=executable [args...], got %q", v)
	}
	for _, c := range s.configs {
		if c.Name == name {
			return fmt.Errorf("duplicate server name %q", name)
		}
	}
	s.configs = append(s.configs, proc.ServerConfig{
		Name:    name,
		Command: strings.Fields(rest),
	})
	return nil
}

// envList is a repeatable -env flag: servername=KEY=VALUE.
type envList struct {
	servers *serverList
}

func (e *envList) String() string { return "" }

func (e *envList) Set(v string) error {
	name, kv, ok := strings.Cut(v, "=")
	if !ok {
		return fmt.Errorf("expected servername=KEY=VALUE, got %q", v)
	}
	key, val, ok := strings.Cut(kv, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected servername=KEY=VALUE, got %q", v)
	}
	for i := range e.servers.configs {
		if e.servers.configs[i].Name == name {
			if e.servers.configs[i].Env == nil {
				e.servers.configs[i].Env = make(map[string]string)
			}
			e.servers.configs[i].Env[key] = val
			return nil
		}
	}
	return fmt.Errorf("-env refers to unknown server %q (declare -server first)", name)
}
