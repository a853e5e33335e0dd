// Package config resolves process configuration once at startup from
// environment variables overlaid onto built-in defaults, returning a
// single immutable record. Grounded on control_plane/main.go's inline
// os.Getenv/fmt.Sscanf reading, generalized into one Load() call instead
// of scattering env reads through main().
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// StoreBackend selects which Store implementation the daemon wires up.
type StoreBackend string

const (
	BackendMemory   StoreBackend = "memory"
	BackendPostgres StoreBackend = "postgres"
)

// Config is the fully resolved, immutable configuration for one process.
type Config struct {
	StoreBackend StoreBackend
	PostgresDSN  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SMTPHost            string
	SMTPPort            int
	SMTPUsername        string
	SMTPPassword         string
	SMTPFrom            string
	SMTPAdminRecipients []string
	MailRatePerMinute   int

	SSHUser        string
	SSHKeyPath     string
	SSHPort        int
	SSHDialTimeout time.Duration
	SSHDialRetries int

	DefaultMaxDuration time.Duration
	DefaultMaxStorage  int64

	SchedulerWaitDelay  time.Duration
	SchedulerOnlyElevated bool
	DryRun              bool

	StatusUpdateInterval time.Duration
	// PruneAgeMaxExperiment retires any experiment finished longer ago
	// than this, regardless of owner. PruneAgeMaxUser retires every
	// experiment belonging to a user inactive longer than this.
	// PruneAgeMinExperiment floors the over-quota sweep: nothing finished
	// more recently than this is pruned just to bring a user back under
	// quota.
	PruneAgeMaxExperiment time.Duration
	PruneAgeMaxUser       time.Duration
	PruneAgeMinExperiment time.Duration
	PruneInterval         time.Duration
	PruneDryRun           bool

	HTTPAddr    string
	MetricsAddr string
}

// Default returns the built-in defaults before any environment overlay.
func Default() Config {
	return Config{
		StoreBackend:         BackendMemory,
		RedisAddr:            "localhost:6379",
		RedisDB:              0,
		SMTPPort:             587,
		MailRatePerMinute:    30,
		SSHPort:              22,
		SSHDialTimeout:       10 * time.Second,
		SSHDialRetries:       3,
		DefaultMaxDuration:   2 * time.Hour,
		DefaultMaxStorage:    5 << 30, // 5 GiB
		SchedulerWaitDelay:   20 * time.Second,
		SchedulerOnlyElevated: false,
		DryRun:               true,
		StatusUpdateInterval:  30 * time.Second,
		PruneAgeMaxExperiment: 30 * 24 * time.Hour,
		PruneAgeMaxUser:       180 * 24 * time.Hour,
		PruneAgeMinExperiment: 24 * time.Hour,
		PruneInterval:         time.Hour,
		HTTPAddr:             ":8080",
		MetricsAddr:          ":9090",
	}
}

// Load overlays environment variables onto Default() and returns the
// resolved record. It never mutates package-level state: callers pass
// the returned Config explicitly to every constructor.
func Load() (Config, error) {
	cfg := Default()

	if v := os.Getenv("STORE_BACKEND"); v != "" {
		cfg.StoreBackend = StoreBackend(v)
	}
	cfg.PostgresDSN = os.Getenv("POSTGRES_DSN")

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: REDIS_DB: %w", err)
		}
		cfg.RedisDB = n
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: SMTP_PORT: %w", err)
		}
		cfg.SMTPPort = n
	}
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.SMTPFrom = v
	}
	if v := os.Getenv("SMTP_ADMIN_RECIPIENTS"); v != "" {
		cfg.SMTPAdminRecipients = splitCSV(v)
	}

	if v := os.Getenv("SSH_USER"); v != "" {
		cfg.SSHUser = v
	}
	if v := os.Getenv("SSH_KEY_PATH"); v != "" {
		cfg.SSHKeyPath = v
	}
	if v := os.Getenv("SSH_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: SSH_PORT: %w", err)
		}
		cfg.SSHPort = n
	}

	if v := os.Getenv("DEFAULT_MAX_DURATION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: DEFAULT_MAX_DURATION: %w", err)
		}
		cfg.DefaultMaxDuration = d
	}
	if v := os.Getenv("DEFAULT_MAX_STORAGE_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: DEFAULT_MAX_STORAGE_BYTES: %w", err)
		}
		cfg.DefaultMaxStorage = n
	}

	if v := os.Getenv("SCHEDULER_WAIT_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: SCHEDULER_WAIT_DELAY: %w", err)
		}
		cfg.SchedulerWaitDelay = d
	}
	cfg.SchedulerOnlyElevated = os.Getenv("SCHEDULER_ONLY_ELEVATED") == "true"
	// Mirrors the teacher's PRODUCTION_MODE flag, inverted: dry-run is
	// the safe default and production is the explicit opt-in.
	cfg.DryRun = os.Getenv("PRODUCTION_MODE") != "true"

	if v := os.Getenv("PRUNE_AGE_MAX_EXPERIMENT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: PRUNE_AGE_MAX_EXPERIMENT: %w", err)
		}
		cfg.PruneAgeMaxExperiment = d
	}
	if v := os.Getenv("PRUNE_AGE_MAX_USER"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: PRUNE_AGE_MAX_USER: %w", err)
		}
		cfg.PruneAgeMaxUser = d
	}
	if v := os.Getenv("PRUNE_AGE_MIN_EXPERIMENT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: PRUNE_AGE_MIN_EXPERIMENT: %w", err)
		}
		cfg.PruneAgeMinExperiment = d
	}
	cfg.PruneDryRun = os.Getenv("PRUNE_DRY_RUN") == "true"

	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}

	return cfg, nil
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
