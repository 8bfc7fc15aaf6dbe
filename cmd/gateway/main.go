package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/openexec-gateway/internal/approval"
	"github.com/xela07ax/openexec-gateway/internal/audit"
	"github.com/xela07ax/openexec-gateway/internal/crypto"
	"github.com/xela07ax/openexec-gateway/internal/domain"
	"github.com/xela07ax/openexec-gateway/internal/engine"
	"github.com/xela07ax/openexec-gateway/internal/infra"
	"github.com/xela07ax/openexec-gateway/internal/infra/auth"
	"github.com/xela07ax/openexec-gateway/internal/ledger"
	"github.com/xela07ax/openexec-gateway/internal/registry"
	"github.com/xela07ax/openexec-gateway/internal/server"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Контекст жизненного цикла фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Журнал исполнений
	var execLedger ledger.Ledger
	if cfg.Database.URL != "" {
		pg, err := ledger.NewPostgresLedger(appCtx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			logger.Fatal("failed to init postgres ledger", zap.Error(err))
		}
		pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
		if err := pg.Ping(pingCtx); err != nil {
			logger.Fatal("database unreachable", zap.Error(err))
		}
		pingCancel()
		defer pg.Close()
		execLedger = pg
	} else {
		logger.Warn("no database configured: executions are kept in memory and lost on restart")
		execLedger = ledger.NewMemoryLedger()
	}

	// 3. Метрики
	promReg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(promReg)

	// 4. Аудит-трейл (опционально)
	var auditor audit.Auditor
	if cfg.Audit.Enabled && cfg.Database.URL != "" {
		storage, err := audit.NewPostgresStorage(appCtx, cfg.Database.URL)
		if err != nil {
			logger.Fatal("failed to init audit storage", zap.Error(err))
		}
		defer storage.Close()

		trail := audit.NewTrail(storage, logger, cfg.Audit.BufferSize)
		trail.SetFillGauge(metrics.AuditBufferFill)
		trail.Start()
		defer trail.Stop()
		auditor = trail
	}

	// 5. Kill-switch поверх Redis (опционально)
	var guard engine.ActionGuard
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ksm := engine.NewKillSwitchManager(rdb, logger)
		if err := ksm.Init(appCtx); err != nil {
			logger.Fatal("failed to init kill-switch manager", zap.Error(err))
		}
		go ksm.StartListener(appCtx)
		guard = ksm
	}

	// 6. Валидатор артефактов одобрения
	validator, err := buildValidator(cfg)
	if err != nil {
		logger.Fatal("failed to init approval validator", zap.Error(err))
	}

	// 7. Реестр действий (явный инстанс, демо-действия — обычные регистрации)
	reg := registry.New()
	registry.RegisterDemo(reg)

	// 8. Ядро
	core := engine.New(engine.Options{
		Mode:           domain.Mode(cfg.Execution.Mode),
		Registry:       reg,
		Ledger:         execLedger,
		Validator:      validator,
		Guard:          guard,
		Auditor:        auditor,
		Metrics:        metrics,
		Logger:         logger,
		AllowedActions: cfg.Execution.AllowedActions,
	})

	// 9. Аутентификация вызывающих (опционально)
	var tokenValidator auth.TokenValidator
	var authService *auth.Service
	if len(cfg.Auth.PublicKey) > 0 {
		pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
		if err != nil {
			logger.Fatal("failed to parse auth public key", zap.Error(err))
		}
		tokenValidator = auth.NewBaseValidator(pubKey)

		if len(cfg.Auth.PrivateKey) > 0 && cfg.Auth.OperatorUser != "" {
			privKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
			if err != nil {
				logger.Fatal("failed to parse auth private key", zap.Error(err))
			}
			authService = auth.NewService(cfg.Auth.OperatorUser, cfg.Auth.OperatorHash, privKey, cfg.Auth.TokenTTL)
		}
	}

	// 10. HTTP Server
	gw := server.NewGatewayServer(cfg, logger, core, reg, tokenValidator, authService, promReg)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      gw.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 11. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("openexec gateway started",
			zap.String("addr", srv.Addr),
			zap.String("mode", cfg.Execution.Mode),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("gateway stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server shutdown failed", zap.Error(err))
	}
	logger.Info("gateway exited properly")
}

// buildValidator собирает валидатор под выбранную схему подписи.
// Отсутствующий trust material — не фатальная ошибка: валидатор вернет
// ConfigurationMissing при первом governed-запросе. Битый ключ — фатальная.
func buildValidator(cfg *infra.Config) (*approval.Validator, error) {
	vcfg := approval.Config{
		Scheme:         approval.Scheme(cfg.Approval.Scheme),
		ExpectedTenant: cfg.Approval.ExpectedTenant,
		RequiredIssuer: cfg.Approval.RequiredIssuer,
		MaxArtifactAge: cfg.Approval.MaxArtifactAge,
	}

	switch vcfg.Scheme {
	case approval.SchemeHMAC:
		if cfg.Approval.SharedSecret != "" {
			verifier, err := crypto.NewHMACVerifier([]byte(cfg.Approval.SharedSecret))
			if err != nil {
				return nil, err
			}
			vcfg.Verifier = verifier
		}
	case approval.SchemeEd25519:
		if len(cfg.Approval.PublicKey) > 0 {
			verifier, err := crypto.NewEd25519Verifier(cfg.Approval.PublicKey)
			if err != nil {
				return nil, err
			}
			vcfg.Verifier = verifier
		}
	default:
		return nil, fmt.Errorf("unknown approval scheme: %s", cfg.Approval.Scheme)
	}

	return approval.NewValidator(vcfg), nil
}
