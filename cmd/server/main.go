package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	httpadapter "feedbackpay/internal/adapters/http"
	"feedbackpay/internal/adapters/memory"
	pg "feedbackpay/internal/adapters/postgres"
	"feedbackpay/internal/adapters/solana"
	"feedbackpay/internal/adapters/vertex"
	"feedbackpay/internal/config"
	"feedbackpay/internal/logging"
	"feedbackpay/internal/ports"
	"feedbackpay/internal/services/deposits"
	"feedbackpay/internal/services/disbursement"
	"feedbackpay/internal/services/gate"
	"feedbackpay/internal/services/settlement"
	"feedbackpay/internal/services/users"
	"feedbackpay/internal/workers/balancewatch"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logrus.Fatalf("logging: %v", err)
	}
	if cfg.EscrowAddress == "" {
		log.Fatal("ESCROW_ADDRESS is required")
	}
	if cfg.GCPProjectID == "" {
		log.Fatal("GCP_PROJECT_ID is required for the content evaluator")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("store")
	}
	defer store.Close()

	// One ledger client and one signing key for the life of the process.
	ledger, err := solana.NewClient(solana.Config{RPCURL: cfg.SolanaRPCURL, Commitment: cfg.SolanaCommitment})
	if err != nil {
		log.WithError(err).Fatal("ledger client")
	}
	if err := ledger.ValidateAddress(cfg.EscrowAddress); err != nil {
		log.WithError(err).Fatal("ESCROW_ADDRESS")
	}
	rewardKey, err := solana.LoadKeypair(cfg.RewardKeypairPath)
	if err != nil {
		log.WithError(err).Fatal("reward keypair")
	}
	rewardWallet := solana.PublicKeyOf(rewardKey).String()

	evaluator, err := vertex.New(ctx, cfg.GCPProjectID, cfg.VertexRegion, cfg.EvaluatorModel)
	if err != nil {
		log.WithError(err).Fatal("evaluator")
	}
	defer evaluator.Close()

	depositSvc := deposits.New(deposits.NewVerifier(ledger), ledger, store, deposits.Config{
		EscrowAddress:      cfg.EscrowAddress,
		RewardAmount:       cfg.RewardLamports(),
		DefaultRewardSlots: cfg.DefaultRewardSlots,
	}, log.WithField("component", "deposits"))

	disburser := disbursement.New(ledger, rewardKey, disbursement.Config{
		MaxAttempts:    cfg.DisburseMaxAttempts,
		AttemptTimeout: cfg.DisburseAttemptTimeout,
		BackoffBase:    cfg.DisburseBackoffBase,
	}, log.WithField("component", "disbursement"))

	settlementSvc := settlement.New(store, store, store,
		gate.New(evaluator, log.WithField("component", "gate")),
		disburser,
		cfg.RewardLamports(),
		log.WithField("component", "settlement"),
	)
	userSvc := users.New(store, ledger)

	limiter, closeLimiter := newLimiter(ctx, cfg, log)
	defer closeLimiter()

	srv := httpadapter.New(depositSvc, settlementSvc, userSvc, ledger, limiter, log.WithField("component", "http"))
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.BalanceWatchInterval > 0 {
		watcher := balancewatch.New(ledger, rewardWallet, cfg.MinRewardBalanceLamports(), log.WithField("component", "balancewatch"))
		go watcher.Run(ctx, cfg.BalanceWatchInterval)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()
	log.WithFields(logrus.Fields{
		"addr":          cfg.ListenAddr,
		"env":           cfg.Env,
		"reward_wallet": rewardWallet,
		"reward_sol":    cfg.RewardLamports().SOL(),
	}).Info("listening")

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server error")
		}
	}

	// In-flight settlements run to completion. Their backoff waits add up to
	// less than base<<attempts.
	grace := time.Duration(cfg.DisburseMaxAttempts)*cfg.DisburseAttemptTimeout +
		cfg.DisburseBackoffBase<<cfg.DisburseMaxAttempts + 5*time.Second
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), grace)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown")
	}
}

func openStore(ctx context.Context, cfg config.Config, log *logrus.Logger) (ports.Store, error) {
	if cfg.DatabaseURL == "" {
		if !cfg.Development() {
			return nil, errors.New("DATABASE_URL is required outside development")
		}
		log.Warn("DATABASE_URL not set, using in-memory store")
		return memory.New(), nil
	}
	db, err := pg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, log); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// newLimiter returns nil when rate limiting is disabled. With REDIS_URL set
// limits are shared across instances and fall back to local buckets while
// Redis is unreachable.
func newLimiter(ctx context.Context, cfg config.Config, log *logrus.Logger) (httpadapter.Limiter, func()) {
	if cfg.RateLimitPerMinute == 0 {
		return nil, func() {}
	}
	local := httpadapter.NewLocalLimiter(cfg.RateLimitPerMinute)
	if cfg.RedisURL == "" {
		return local, func() {}
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.WithError(err).Warn("REDIS_URL invalid, using local rate limits")
		return local, func() {}
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.WithError(err).Warn("redis unavailable at startup, limits fall back to local until it recovers")
	}
	return httpadapter.WithFallback(httpadapter.NewRedisLimiter(client, cfg.RateLimitPerMinute), local, log), func() { _ = client.Close() }
}
