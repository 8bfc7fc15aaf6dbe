package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/openexec-gateway/internal/domain"
	"github.com/xela07ax/openexec-gateway/internal/engine"
	"github.com/xela07ax/openexec-gateway/internal/infra"
	"github.com/xela07ax/openexec-gateway/internal/infra/auth"
	"github.com/xela07ax/openexec-gateway/internal/registry"
)

const Version = "0.1.0"

// GatewayServer — транспортный слой шлюза: маршрутизация, маппинг ошибок
// ядра в статус-коды и сервисные эндпоинты.
type GatewayServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	core *engine.Engine
	reg  *registry.Registry

	// nil, если аутентификация вызывающих не сконфигурирована
	authValidator auth.TokenValidator
	authService   *auth.Service

	promReg *prometheus.Registry
}

func NewGatewayServer(
	cfg *infra.Config,
	logger *zap.Logger,
	core *engine.Engine,
	reg *registry.Registry,
	authValidator auth.TokenValidator,
	authService *auth.Service,
	promReg *prometheus.Registry,
) *GatewayServer {
	s := &GatewayServer{
		router:        chi.NewRouter(),
		logger:        logger.Named("gateway-api"),
		cfg:           cfg,
		core:          core,
		reg:           reg,
		authValidator: authValidator,
		authService:   authService,
		promReg:       promReg,
	}

	s.routes()
	return s
}

func (s *GatewayServer) Handler() http.Handler { return s.router }

func (s *GatewayServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(TracingMiddleware)

	if s.cfg.Server.RateLimit > 0 {
		limiter := rate.NewLimiter(rate.Limit(s.cfg.Server.RateLimit), s.cfg.Server.RateBurst)
		r.Use(RateLimitMiddleware(limiter))
	}

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		r.Get("/", s.handleRoot)
		r.Get("/health", s.handleHealth)
		r.Get("/version", s.handleVersion)
		r.Get("/ready", s.handleReady)

		if s.promReg != nil {
			r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))
		}

		if s.authService != nil {
			r.Post("/auth/token", s.handleLogin)
		}
	})

	// --- 3. ИСПОЛНЕНИЕ (опционально за токеном) ---
	r.Group(func(r chi.Router) {
		if s.authValidator != nil {
			r.Use(auth.NewMiddleware(s.authValidator, s.logger))
		}
		r.Post("/execute", s.handleExecute)
	})
}

func (s *GatewayServer) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req domain.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Action == "" || req.Nonce == "" {
		writeError(w, http.StatusBadRequest, "action and nonce are required")
		return
	}

	// Scope-проверка токена: покрывает ли он запрошенное действие
	if s.authValidator != nil {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok || !claims.Allows(req.Action) {
			writeError(w, http.StatusForbidden, "token does not grant permission for "+req.Action)
			return
		}
	}

	record, err := s.core.Execute(r.Context(), &req)
	if err != nil {
		s.writeEngineError(w, r, &req, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// writeEngineError мапит таксономию ядра в статус-коды:
// Unauthorized — 403, UnknownAction — 404, StoreUnavailable — 503.
func (s *GatewayServer) writeEngineError(w http.ResponseWriter, r *http.Request, req *domain.ActionRequest, err error) {
	var unauthorized *domain.UnauthorizedError

	switch {
	case errors.As(err, &unauthorized):
		writeError(w, http.StatusForbidden, unauthorized.Reason)
	case errors.Is(err, domain.ErrUnknownAction):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		s.logger.Error("store unavailable",
			zap.String("trace_id", TraceIDFromContext(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusServiceUnavailable, "execution store unavailable")
	default:
		s.logger.Error("execution failed",
			zap.String("action", req.Action),
			zap.String("trace_id", TraceIDFromContext(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *GatewayServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := s.authService.GenerateToken(req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (s *GatewayServer) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "openexec-gateway",
		"status":  "running",
		"version": Version,
	})
}

// handleHealth отдает операционный профиль шлюза: режим, схему подписи
// и ограничение реестра. Отсутствие allow-list помечается предупреждением.
func (s *GatewayServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]interface{}{
		"status":    "healthy",
		"exec_mode": string(s.core.Mode()),
	}

	if s.core.Mode() == domain.ModeGoverned {
		body["signature_verification"] = "enabled"
		body["signature_scheme"] = s.cfg.Approval.Scheme
	} else {
		body["signature_verification"] = "disabled"
	}

	if s.core.Restricted() {
		body["restriction"] = "restricted"
		body["allow_list"] = s.cfg.Execution.AllowedActions
	} else {
		body["restriction"] = "open"
		body["warning"] = "No execution allow-list configured"
	}

	writeJSON(w, http.StatusOK, body)
}

func (s *GatewayServer) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":   Version,
		"actions":   s.reg.List(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *GatewayServer) handleReady(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"ready": true})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
