package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"activation-code-service/internal/config"
	"activation-code-service/internal/domain/ports/adapter"
	"activation-code-service/internal/infra/adapters/email"
	"activation-code-service/internal/infra/adapters/payment"
	"activation-code-service/internal/infra/adapters/token"
	"activation-code-service/internal/infra/api"
	pg "activation-code-service/internal/infra/db/postgres"
	"activation-code-service/internal/infra/i18n"
	"activation-code-service/internal/infra/logging"
	"activation-code-service/internal/infra/metrics"
	red "activation-code-service/internal/infra/redis"
	"activation-code-service/internal/infra/sched"
	"activation-code-service/internal/infra/security"
	"activation-code-service/internal/infra/worker"
	"activation-code-service/internal/usecase"
)

func newServeCommand() *cobra.Command {
	var autoMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(cfgPath, devMode)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, autoMigrate)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, autoMigrate bool) error {
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	if autoMigrate {
		m, err := pg.NewMigrator(pool)
		if err != nil {
			return err
		}
		err = m.Up(ctx)
		_ = m.Close()
		if err != nil {
			return err
		}
	}

	// ---- Encryption of payment context ----
	var cipher pg.PayloadCipher
	if key := cfg.Security.EncryptionKey; key != "" {
		enc, err := security.NewEncryptionService(key, "transactions.payment_context", cfg.Security.PreviousKeys...)
		if err != nil {
			return fmt.Errorf("encryption: %w", err)
		}
		cipher = enc
	} else {
		logger.Warn().Msg("security.encryption_key not set; payment context stored as plain JSON")
	}

	// ---- Repositories ----
	userRepo := pg.NewPostgresUserRepo(pool)
	codeRepo := pg.NewCodeRepo(pool)
	txnRepo := pg.NewTransactionRepo(pool, cipher)
	notifRepo := pg.NewNotificationRepo(pool, pg.NewTxManager(pool))

	// ---- Redis (optional) ----
	var (
		limiter api.Limiter
		locker  red.Locker
	)
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable; rate limiting and sweep lock disabled")
		} else {
			defer func() { _ = rc.Close() }()
			limiter = red.NewRateLimiter(rc)
			locker = red.NewLocker(rc)
		}
	}

	// ---- Gateways ----
	payments, verifier, err := newPaymentGateway(cfg, logger)
	if err != nil {
		return err
	}
	tokens := token.NewGateway(cfg.Token, logger)
	sender, err := email.NewSender(cfg.Email, logger, cfg.Runtime.Dev)
	if err != nil {
		return fmt.Errorf("email: %w", err)
	}

	// the pool outlives the signal so queued deliveries can drain on Stop
	wp := worker.NewPool(cfg.Workers.Pool, logger)
	wp.Start(context.WithoutCancel(ctx))
	defer wp.Stop()

	// ---- Use cases ----
	codeUC := usecase.NewCodeUseCase(codeRepo, usecase.CodeOptions{
		TrialExpiryDays:     cfg.Codes.TrialExpiryDays,
		MaxGenerateAttempts: cfg.Codes.MaxGenerateAttempts,
	}, logger)
	txnUC := usecase.NewTransactionUseCase(txnRepo, logger)
	mailCopy, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Email.Language)
	if err != nil {
		return fmt.Errorf("email.language: %w", err)
	}
	notifUC := usecase.NewNotificationUseCase(notifRepo, sender, usecase.NotificationOptions{
		Copy:            mailCopy,
		Brand:           cfg.Email.Brand,
		SupportEmail:    cfg.Email.SupportEmail,
		DownloadURL:     cfg.Email.DownloadURL,
		TrialExpiryDays: cfg.Codes.TrialExpiryDays,
		MaxAttempts:     cfg.Email.MaxAttempts,
		RetryBase:       cfg.Email.RetryBase,
		RetryMax:        cfg.Email.RetryMax,
		SendTimeout:     cfg.Email.SendTimeout,
	}, logger)
	policy, err := usecase.NewOutcomePolicy(cfg.Reconcile.OutcomeMode, cfg.Reconcile.Outcomes)
	if err != nil {
		return err
	}
	if policy.Mode() == usecase.OutcomeModeAlwaysIssue {
		logger.Warn().Msg("reconcile.outcome_mode=always_issue: every callback issues a code")
	}
	reconcileUC := usecase.NewReconcileUseCase(txnUC, codeUC, tokens, notifUC, wp, policy, usecase.ReconcileOptions{
		IssuanceLease: cfg.Reconcile.IssuanceLease,
		WaitTimeout:   cfg.Reconcile.WaitTimeout,
	}, logger)
	requestUC := usecase.NewRequestUseCase(userRepo, codeUC, txnUC, tokens, payments, notifUC, wp, usecase.RequestOptions{
		PremiumPrice: cfg.Payment.PremiumPrice,
		Currency:     cfg.Payment.Currency,
		OrderInfo:    cfg.Payment.MoMo.OrderInfo,
	}, logger)

	// ---- HTTP ----
	var auth *api.AuthManager
	if cfg.Admin.JWTSecret != "" {
		auth = api.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.SecureCookie, cfg.Admin.SessionTTL)
	}
	srv := api.NewServer(api.Deps{
		Reconcile: reconcileUC,
		Requests:  requestUC,
		Codes:     codeUC,
		Txns:      txnUC,
		Verifier:  verifier,
		Limiter:   limiter,
		Auth:      auth,
	}, api.Options{
		PortalURL:      cfg.Server.PortalURL,
		AdminAPIKey:    cfg.Admin.APIKey,
		RequestTimeout: cfg.Server.RequestTimeout,
		RateLimit:      cfg.RateLimit.Requests,
		RateWindow:     cfg.RateLimit.Window,
	}, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ---- Workers ----
	runners := []runner{
		sched.NewCodeExpiryWorker(cfg.Codes.SweepInterval, codeUC, locker, logger),
		sched.NewNotificationWorker(cfg.Email.PollInterval, cfg.Email.BatchSize, notifUC, logger),
		sched.NewDBStatsWorker(15*time.Second, sched.PgxPoolStats(pool)),
	}
	logger.Info().Str("addr", httpServer.Addr).Str("payment", payments.Name()).Msg("http listening")
	return runUntilDone(ctx, runners, httpServer.ListenAndServe, httpServer.Shutdown, logger)
}

type runner interface{ Run(context.Context) error }

// runUntilDone runs the workers next to listen and returns when ctx ends or
// listen fails. The workers are cancelled and joined before returning.
func runUntilDone(
	ctx context.Context,
	runners []runner,
	listen func() error,
	shutdown func(context.Context) error,
	logger *zerolog.Logger,
) error {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	var wg sync.WaitGroup
	for _, r := range runners {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Run(runCtx)
		}()
	}

	errc := make(chan error, 1)
	go func() {
		if err := listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	var err error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err = <-errc:
		logger.Error().Err(err).Msg("http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if serr := shutdown(shutdownCtx); serr != nil {
		logger.Warn().Err(serr).Msg("http shutdown")
	}
	stop()
	wg.Wait()
	return err
}

func newPaymentGateway(cfg *config.Config, logger *zerolog.Logger) (adapter.PaymentGateway, api.CallbackVerifier, error) {
	ipnURL := cfg.Server.BaseURL + "/callback/notify"
	redirectURL := cfg.Server.BaseURL + "/callback/redirect"

	if cfg.Payment.Provider == "noop" {
		logger.Warn().Msg("payment.provider=noop: payments are simulated")
		return payment.NewNoopPaymentGateway(redirectURL), nil, nil
	}
	g, err := payment.NewMoMoGateway(cfg.Payment.MoMo, ipnURL, redirectURL)
	if err != nil {
		return nil, nil, fmt.Errorf("momo gateway: %w", err)
	}
	if cfg.Payment.MoMo.VerifiesCallbacks() {
		return g, g, nil
	}
	logger.Warn().Msg("payment.momo.verify_signature=false: unsigned callbacks are trusted, including redirect result codes")
	return g, nil, nil
}
