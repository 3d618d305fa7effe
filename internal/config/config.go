package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"feedbackpay/internal/domain"
)

type Config struct {
	Env        string `env:"APP_ENV,default=development"`
	ListenAddr string `env:"LISTEN_ADDR,default=:8080"`
	LogLevel   string `env:"LOG_LEVEL,default=info"`
	LogFormat  string `env:"LOG_FORMAT,default=json"`

	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	SolanaRPCURL      string `env:"SOLANA_RPC_URL,default=https://api.devnet.solana.com"`
	SolanaCommitment  string `env:"SOLANA_COMMITMENT,default=confirmed"`
	RewardKeypairPath string `env:"REWARD_KEYPAIR_PATH,default=phantom.json"`
	EscrowAddress     string `env:"ESCROW_ADDRESS"`

	RewardAmount       string `env:"REWARD_AMOUNT,default=0.01"`
	DefaultRewardSlots int    `env:"DEFAULT_REWARD_SLOTS,default=3"`

	DisburseMaxAttempts    int           `env:"DISBURSE_MAX_ATTEMPTS,default=3"`
	DisburseAttemptTimeout time.Duration `env:"DISBURSE_ATTEMPT_TIMEOUT,default=7s"`
	DisburseBackoffBase    time.Duration `env:"DISBURSE_BACKOFF_BASE,default=2s"`

	GCPProjectID   string `env:"GCP_PROJECT_ID"`
	VertexRegion   string `env:"VERTEX_AI_REGION,default=us-central1"`
	EvaluatorModel string `env:"EVALUATOR_MODEL,default=gemini-2.0-flash-lite"`

	BalanceWatchInterval time.Duration `env:"BALANCE_WATCH_INTERVAL,default=0s"`
	MinRewardBalance     string        `env:"MIN_REWARD_BALANCE,default=0.1"`

	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE,default=30"`

	rewardLamports   domain.Lamports
	minRewardBalance domain.Lamports
}

// Load reads an optional .env file, then the environment. A missing
// DATABASE_URL is not an error here; main decides whether that is fatal.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var err error
	if c.rewardLamports, err = domain.ParseSOL(c.RewardAmount); err != nil {
		return fmt.Errorf("REWARD_AMOUNT: %w", err)
	}
	if c.rewardLamports == 0 {
		return fmt.Errorf("REWARD_AMOUNT must be positive")
	}
	if c.minRewardBalance, err = domain.ParseSOL(c.MinRewardBalance); err != nil {
		return fmt.Errorf("MIN_REWARD_BALANCE: %w", err)
	}
	if c.DefaultRewardSlots < 1 {
		return fmt.Errorf("DEFAULT_REWARD_SLOTS must be at least 1")
	}
	if c.DisburseMaxAttempts < 1 {
		return fmt.Errorf("DISBURSE_MAX_ATTEMPTS must be at least 1")
	}
	if c.DisburseAttemptTimeout <= 0 {
		return fmt.Errorf("DISBURSE_ATTEMPT_TIMEOUT must be positive")
	}
	if c.DisburseBackoffBase <= 0 {
		return fmt.Errorf("DISBURSE_BACKOFF_BASE must be positive")
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative")
	}
	return nil
}

// RewardLamports is the fixed reward per settled feedback.
func (c Config) RewardLamports() domain.Lamports { return c.rewardLamports }

// MinRewardBalanceLamports is the reward wallet balance below which the
// balance watcher warns.
func (c Config) MinRewardBalanceLamports() domain.Lamports { return c.minRewardBalance }

// Development reports whether the process runs in a development environment.
func (c Config) Development() bool { return c.Env == "development" }
