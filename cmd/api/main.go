package main

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/example/payroll-treasury/internal/api"
	"github.com/example/payroll-treasury/internal/auth"
	"github.com/example/payroll-treasury/internal/config"
	"github.com/example/payroll-treasury/internal/crypto"
	"github.com/example/payroll-treasury/internal/custody"
	"github.com/example/payroll-treasury/internal/security"
	"github.com/example/payroll-treasury/internal/treasury"
	"github.com/example/payroll-treasury/internal/vault"
	"github.com/example/payroll-treasury/pkg/audit"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	custodySecret := []byte(cfg.CustodySecret)
	if cfg.CustodySecret == "" {
		keeper, err := crypto.NewKeeperFromFile(cfg.CustodyKeyFile)
		if err != nil {
			logger.Error("failed to load custody key-encryption key", "error", err)
			os.Exit(1)
		}
		custodySecret, err = keeper.OpenFile(cfg.CustodySecretFile, "custody-secret")
		if err != nil {
			logger.Error("failed to unseal custody secret", "error", err)
			os.Exit(1)
		}
	}

	deriver, err := custody.NewDeriver(custodySecret)
	if err != nil {
		logger.Error("invalid custody secret", "error", err)
		os.Exit(1)
	}

	var (
		store       treasury.Store
		clientStore auth.ClientStore
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create postgres pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		pg := treasury.NewPostgresStore(pool, deriver)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}
		store = pg

		cs := &auth.PostgresClientStore{Pool: pool}
		if err := cs.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure oauth schema", "error", err)
			os.Exit(1)
		}
		clientStore = cs
		seedClient(ctx, logger, cs.UpsertClient)
	} else {
		logger.Warn("DATABASE_URL not set, running on in-memory store")
		store = treasury.NewMemoryStore()
		ms := auth.NewMemoryClientStore()
		clientStore = ms
		seedClient(ctx, logger, ms.UpsertClient)
	}

	var oracle vault.PriceOracle
	if cfg.VaultOracleURL != "" {
		oracle = vault.NewHTTPOracle(cfg.VaultOracleURL)
	} else {
		price, err := decimal.NewFromString(cfg.VaultSharePrice)
		if err != nil {
			logger.Error("invalid VAULT_SHARE_PRICE", "error", err)
			os.Exit(1)
		}
		oracle = vault.NewStaticOracle(price)
	}

	poolAddr := treasury.VaultPoolAddress(deriver)
	svc := treasury.NewService(store, &vault.Adapter{Oracle: oracle, Pool: poolAddr}, deriver, logger)
	svc.SlippageToleranceBps = cfg.SlippageToleranceBps

	keySet, err := auth.NewKeySet()
	if err != nil {
		logger.Error("failed to create keyset", "error", err)
		os.Exit(1)
	}
	oauthServer := &auth.OAuthServer{
		Store:          clientStore,
		Keys:           keySet,
		Issuer:         "treasury-api",
		AccessTokenTTL: 15 * time.Minute,
	}
	jwtValidator := &auth.JWTValidator{KeySet: keySet, Issuer: "treasury-api"}

	var rateLimiter *security.TokenBucket
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		rateLimiter = &security.TokenBucket{
			Redis:      redisClient,
			Prefix:     "treasury_api",
			Capacity:   getenvInt("API_RATE_LIMIT_CAPACITY", 20),
			RefillRate: float64(getenvInt("API_RATE_LIMIT_REFILL_PER_SEC", 10)),
		}
	}

	var auditor api.Auditor
	if cfg.AuditSink != "" {
		sink, err := audit.OpenSink(cfg.AuditSink)
		if err != nil {
			logger.Error("failed to open audit sink", "error", err)
			os.Exit(1)
		}
		defer sink.Close()
		sink.OnError = func(err error) { logger.Error("audit write failed", "error", err) }
		auditor = sink
	} else {
		auditor = audit.NewChainLogger()
	}

	allowlist, err := security.ParseCIDRAllowlist(strings.Split(os.Getenv("API_IP_ALLOWLIST"), ","))
	if err != nil {
		logger.Error("invalid API_IP_ALLOWLIST", "error", err)
		os.Exit(1)
	}

	router, err := api.NewRouter(api.Dependencies{
		Logger:       logger,
		OAuth:        oauthServer,
		JWTValidator: jwtValidator,
		Treasury:     svc,
		Auditor:      auditor,
		RateLimiter:  rateLimiter,
		IPAllowlist:  allowlist,
		MaxBodyBytes: int64(getenvInt("API_MAX_BODY_BYTES", 1<<20)),
	})
	if err != nil {
		logger.Error("failed to build router", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "error", err)
		os.Exit(1)
	}

	certFile, keyFile, caFile := os.Getenv("API_TLS_CERT"), os.Getenv("API_TLS_KEY"), os.Getenv("API_TLS_CA")
	if certFile != "" && keyFile != "" {
		tlsCfg, err := security.LoadServerTLSConfig(security.TLSConfig{
			CertFile:          certFile,
			KeyFile:           keyFile,
			CAFile:            caFile,
			RequireClientAuth: caFile != "",
		})
		if err != nil {
			logger.Error("failed to load TLS config", "error", err)
			os.Exit(1)
		}
		srv.TLSConfig = tlsCfg
		ln = tls.NewListener(ln, tlsCfg)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("treasury api listening", "addr", cfg.ListenAddr, "env", cfg.Environment)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// seedClient registers the bootstrap OAuth client from the environment,
// so a fresh deployment has one credential to mint further clients with.
func seedClient(ctx context.Context, logger *slog.Logger, upsert func(context.Context, string, string, []string) error) {
	id, secret := os.Getenv("OAUTH_CLIENT_ID"), os.Getenv("OAUTH_CLIENT_SECRET")
	if id == "" || secret == "" {
		return
	}
	scopes := []string{auth.ScopeTreasuryRead, auth.ScopeTreasuryWrite, auth.ScopePayrollWrite}
	if err := upsert(ctx, id, secret, scopes); err != nil {
		logger.Error("failed to seed oauth client", "error", err)
		os.Exit(1)
	}
	logger.Info("seeded oauth client", "client_id", id)
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
