// Package driftsdk is the SDK's public entry point: Start/Stop, the
// driver-facing span/mock API, and a closed Config surface covering
// apiKey, env, logLevel, samplingRate, and transforms.
//
// The Start()/Stop()/functional-option shape and the WithXxx option
// constructors below follow dd-trace-go's tracer.StartOption pattern.
package driftsdk

import (
	"os"
	"strconv"

	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/ddlog"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/mock"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/mode"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/transformengine"
)

// Config is the SDK's closed configuration surface.
type Config struct {
	APIKey       string
	Env          string
	LogLevel     ddlog.Level
	SamplingRate float64
	Transforms   []transformengine.Rule

	Mode mode.Mode

	// SocketPath, or Host+Port, select the CLI transport's dial target.
	SocketPath string
	Host       string
	Port       int

	// FilesystemDir, if set, enables the filesystem export adapter
	// rooted at this directory (RECORD mode).
	FilesystemDir string

	// localResolver, set via WithLocalMockStore, bypasses the CLI
	// socket entirely and resolves mocks from an in-process Store, for
	// driver tests that don't want to stand up a companion CLI process.
	localResolver *mock.Resolver

	samplingSetByOption bool
}

// WithLocalMockStore wires an in-process mock.Store as the resolution
// source instead of dialing the CLI transport, for tests that want to
// exercise REPLAY-mode driver code without a companion CLI process.
func WithLocalMockStore(store *mock.Store) Option {
	return func(c *Config) { c.localResolver = mock.NewResolver(store) }
}

// Option mutates a Config being built by Start.
type Option func(*Config)

// WithAPIKey sets the optional API key.
func WithAPIKey(key string) Option { return func(c *Config) { c.APIKey = key } }

// WithEnv sets the deployment environment name.
func WithEnv(env string) Option { return func(c *Config) { c.Env = env } }

// WithLogLevel sets the minimum logged level.
func WithLogLevel(level ddlog.Level) Option { return func(c *Config) { c.LogLevel = level } }

// WithSamplingRate sets the init-param sampling rate, the highest
// precedence source for this setting.
func WithSamplingRate(rate float64) Option {
	return func(c *Config) { c.SamplingRate = rate; c.samplingSetByOption = true }
}

// WithTransforms installs the Transform Engine's rule set.
func WithTransforms(rules []transformengine.Rule) Option {
	return func(c *Config) { c.Transforms = rules }
}

// WithFilesystemDir enables the filesystem export adapter.
func WithFilesystemDir(dir string) Option { return func(c *Config) { c.FilesystemDir = dir } }

// defaultSamplingRate is used when neither an init param nor
// TUSK_SAMPLING_RATE is set.
const defaultSamplingRate = 1.0

// resolveConfig applies opts over defaults, then layers in env vars at
// the expected precedence: init param > env var > config file >
// default. Config-file loading is out of scope, so this resolves
// init-param > env var > default.
func resolveConfig(opts ...Option) Config {
	c := Config{
		LogLevel:     ddlog.LevelWarn,
		SamplingRate: defaultSamplingRate,
	}
	for _, o := range opts {
		o(&c)
	}

	// An unset mode falls back to TUSK_DRIFT_MODE; Parse maps an unset
	// or unknown value to DISABLED.
	if c.Mode == "" {
		c.Mode = mode.Parse(os.Getenv("TUSK_DRIFT_MODE"))
	}

	if !c.samplingSetByOption {
		if v := os.Getenv("TUSK_SAMPLING_RATE"); v != "" {
			if rate, err := strconv.ParseFloat(v, 64); err == nil && rate >= 0 && rate <= 1 {
				c.SamplingRate = rate
			} else {
				ddlog.Warn("driftsdk: ignoring invalid TUSK_SAMPLING_RATE %q", v)
			}
		}
	}

	if c.SocketPath == "" && c.Host == "" {
		if sock := os.Getenv("TUSK_MOCK_SOCKET"); sock != "" {
			c.SocketPath = sock
		} else {
			c.Host = os.Getenv("TUSK_MOCK_HOST")
			if p := os.Getenv("TUSK_MOCK_PORT"); p != "" {
				if port, err := strconv.Atoi(p); err == nil {
					c.Port = port
				}
			}
		}
	}

	return c
}
