// Package config loads murmur configuration from CUE files.
//
// Files are unified with an embedded schema (#Config) that supplies
// defaults and enforces constraints, so a file only lists what it
// changes. Unknown fields are rejected.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/murmur/internal/ir"
	"github.com/roach88/murmur/internal/ranking"
)

//go:embed schema.cue
var schemaSrc string

// Config is the resolved configuration.
type Config struct {
	City     string        `json:"city"`
	Database string        `json:"database"`
	Mode     string        `json:"mode"`
	Ranking  RankingConfig `json:"ranking"`
	Posts    PostsConfig   `json:"posts"`
	Relay    RelayConfig   `json:"relay"`
	Debug    DebugConfig   `json:"debug"`
	Log      LogConfig     `json:"log"`
}

// RankingConfig sizes the ranking windows.
type RankingConfig struct {
	RecentWindow  int `json:"recentWindow"`
	HotCandidates int `json:"hotCandidates"`
	HotWindow     int `json:"hotWindow"`
}

// PostsConfig bounds post and comment bodies.
type PostsConfig struct {
	MaxBodyRunes int `json:"maxBodyRunes"`
}

// RelayConfig enables the Redis change relay when RedisURL is set.
type RelayConfig struct {
	RedisURL string `json:"redisURL,omitempty"`
	Channel  string `json:"channel"`
}

// DebugConfig enables the debug HTTP server when Addr is set.
type DebugConfig struct {
	Addr string `json:"addr,omitempty"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `json:"level"`
}

// Windows returns the ranking windows.
func (c Config) Windows() ranking.Windows {
	return ranking.Windows{
		Recent:        c.Ranking.RecentWindow,
		HotCandidates: c.Ranking.HotCandidates,
		HotDisplay:    c.Ranking.HotWindow,
	}
}

// RankingMode returns the initial ranking mode.
func (c Config) RankingMode() ir.Mode {
	m, err := ir.ParseMode(c.Mode)
	if err != nil {
		return ir.ModeRecent
	}
	return m
}

// SlogLevel returns the configured log level.
func (c Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default returns the schema defaults.
func Default() Config {
	cfg, err := Parse("default.cue", nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema defaults invalid: %v", err))
	}
	return cfg
}

// Load reads and validates the configuration file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, data)
}

// Parse validates CUE source against the schema. filename is used in
// error positions.
func Parse(filename string, src []byte) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	file := ctx.CompileBytes(src, cue.Filename(filename))
	if err := file.Err(); err != nil {
		return Config{}, fmt.Errorf("parse %s: %s", filename, details(err))
	}

	v := def.Unify(file)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %s", filename, details(err))
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", filename, err)
	}
	return cfg, nil
}

func details(err error) string {
	return cueerrors.Details(err, nil)
}
