package config

import (
	"fmt"
	"time"

	"github.com/skylarbarrera/whim/internal/env"
)

// OrchestratorConfig holds all configuration for the orchestrator binary.
type OrchestratorConfig struct {
	Database      DatabaseConfig
	HTTP          HTTPConfig
	Retry         RetryConfig
	Sweeper       SweeperConfig
	SpecGen       SpecGenConfig
	Dispatcher    DispatcherConfig
	Observability ObservabilityConfig

	ShutdownTimeout time.Duration `env:"WHIM_SHUTDOWN_TIMEOUT"`
}

// HTTPConfig holds HTTP surface configuration.
type HTTPConfig struct {
	Host              string        `env:"WHIM_HTTP_HOST"`
	Port              string        `env:"WHIM_HTTP_PORT"`
	ReadTimeout       time.Duration `env:"WHIM_HTTP_READ_TIMEOUT"`
	WriteTimeout      time.Duration `env:"WHIM_HTTP_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `env:"WHIM_HTTP_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `env:"WHIM_HTTP_READ_HEADER_TIMEOUT"`
	MaxHeaderBytes    int           `env:"WHIM_HTTP_MAX_HEADER_BYTES"`
	MaxBodyBytes      int64         `env:"WHIM_HTTP_MAX_BODY_BYTES"`
}

// RetryConfig mirrors retry.Policy as loadable environment fields.
type RetryConfig struct {
	Cap       int           `env:"WHIM_RETRY_CAP"`
	BaseDelay time.Duration `env:"WHIM_RETRY_BASE_DELAY"`
	MaxDelay  time.Duration `env:"WHIM_RETRY_MAX_DELAY"`
}

// SweeperConfig holds staleness-sweeper tunables.
type SweeperConfig struct {
	Interval          time.Duration `env:"WHIM_SWEEP_INTERVAL"`
	StaleWindow       time.Duration `env:"WHIM_SWEEP_STALE_WINDOW"`
	RegistrationGrace time.Duration `env:"WHIM_SWEEP_REGISTRATION_GRACE"`
	LeaseDuration     time.Duration `env:"WHIM_SWEEP_LEASE_DURATION"`
}

// SpecGenConfig holds spec-generation manager tunables.
type SpecGenConfig struct {
	Command     string        `env:"WHIM_SPECGEN_COMMAND"`
	Timeout     time.Duration `env:"WHIM_SPECGEN_TIMEOUT"`
	MaxAttempts int           `env:"WHIM_SPECGEN_MAX_ATTEMPTS"`
	ScratchRoot string        `env:"WHIM_SPECGEN_SCRATCH_ROOT"`
}

// DispatcherConfig holds dispatcher tunables.
type DispatcherConfig struct {
	Capacity     int           `env:"WHIM_DISPATCH_CAPACITY"`
	PollInterval time.Duration `env:"WHIM_DISPATCH_POLL_INTERVAL"`
	DailyBudget  int           `env:"WHIM_DISPATCH_DAILY_BUDGET"`

	// WorkerCommand is the worker binary path or name on PATH that the
	// dispatcher spawns per claimed work item.
	WorkerCommand string `env:"WHIM_WORKER_COMMAND"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	OTelEnabled bool   `env:"WHIM_OTEL_ENABLED"`
	ServiceName string `env:"OTEL_SERVICE_NAME"`
}

// LoadOrchestratorConfig loads and validates the orchestrator's
// configuration from the environment, applying defaults for anything
// left zero-valued.
func LoadOrchestratorConfig() (*OrchestratorConfig, error) {
	cfg := &OrchestratorConfig{}
	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("load orchestrator config: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *OrchestratorConfig) {
	if cfg.HTTP.Port == "" {
		cfg.HTTP.Port = "8080"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 10 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 10 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxBodyBytes == 0 {
		cfg.HTTP.MaxBodyBytes = 1 << 20
	}
	if cfg.Retry.Cap == 0 {
		cfg.Retry.Cap = 3
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = 30 * time.Second
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 30 * time.Minute
	}
	if cfg.Sweeper.Interval == 0 {
		cfg.Sweeper.Interval = 30 * time.Second
	}
	if cfg.Sweeper.StaleWindow == 0 {
		cfg.Sweeper.StaleWindow = 120 * time.Second
	}
	if cfg.Sweeper.RegistrationGrace == 0 {
		cfg.Sweeper.RegistrationGrace = 60 * time.Second
	}
	if cfg.Sweeper.LeaseDuration == 0 {
		cfg.Sweeper.LeaseDuration = time.Minute
	}
	if cfg.SpecGen.Timeout == 0 {
		cfg.SpecGen.Timeout = 5 * time.Minute
	}
	if cfg.SpecGen.MaxAttempts == 0 {
		cfg.SpecGen.MaxAttempts = 3
	}
	if cfg.Dispatcher.Capacity == 0 {
		cfg.Dispatcher.Capacity = 4
	}
	if cfg.Dispatcher.PollInterval == 0 {
		cfg.Dispatcher.PollInterval = time.Second
	}
	if cfg.Dispatcher.WorkerCommand == "" {
		cfg.Dispatcher.WorkerCommand = "whim-worker"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}
