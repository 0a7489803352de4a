package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/stemreport/apiserver/config"
	"github.com/stemreport/apiserver/internal/db"
	"github.com/stemreport/apiserver/internal/handlers"
	"github.com/stemreport/apiserver/internal/mq"
	"github.com/stemreport/apiserver/internal/services"
	"github.com/stemreport/apiserver/internal/storage"
	"github.com/stemreport/apiserver/internal/store"
	"github.com/stemreport/apiserver/internal/store/memory"
	"github.com/stemreport/apiserver/types"
)

const requestTimeout = 60 * time.Second

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	mq         *mq.MQ
	logger     zerolog.Logger
}

// Repositories is the set of stores backing the services.
type Repositories struct {
	Users    services.UserRepository
	Planning services.PlanningRepository
	Reports  services.ReportRepository
	Regions  services.RegionRepository
}

// PostgresRepositories returns the postgres-backed stores.
func PostgresRepositories(dbConn *sql.DB) Repositories {
	return Repositories{
		Users:    store.NewUserRepository(dbConn),
		Planning: store.NewPlanningRepository(dbConn),
		Reports:  store.NewReportRepository(dbConn),
		Regions:  store.NewRegionRepository(dbConn),
	}
}

// MemoryRepositories returns stores kept in process memory.
func MemoryRepositories() Repositories {
	st := memory.New()
	return Repositories{
		Users:    st.Users(),
		Planning: st.Planning(),
		Reports:  st.Reports(),
		Regions:  st.Regions(),
	}
}

// Services groups the use-cases served over HTTP.
type Services struct {
	Users       *services.UserService
	Planning    *services.PlanningService
	Reports     *services.ReportService
	Aggregation *services.AggregationService
}

// NewServices wires the use-cases over repos. Options configure the
// report lifecycle engine.
func NewServices(repos Repositories, logger zerolog.Logger, opts ...services.ReportServiceOption) Services {
	return Services{
		Users:       services.NewUserService(repos.Users, logger),
		Planning:    services.NewPlanningService(repos.Planning, repos.Regions, logger),
		Reports:     services.NewReportService(repos.Reports, repos.Planning, repos.Users, logger, opts...),
		Aggregation: services.NewAggregationService(repos.Planning, repos.Reports, repos.Users, repos.Regions),
	}
}

// New constructs a Server from cfg: it opens the configured store, broker
// and object storage and mounts every route.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Server, error) {
	jwtSecret := strings.TrimSpace(cfg.JWTSecret)
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	s := &Server{logger: logger}

	var repos Repositories
	switch strings.ToLower(strings.TrimSpace(cfg.StoreBackend)) {
	case "", config.StorePostgres:
		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.db = dbConn
		repos = PostgresRepositories(dbConn)
	case config.StoreMemory:
		logger.Warn().Msg("using in-memory store, data is lost on restart")
		repos = MemoryRepositories()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	var opts []services.ReportServiceOption
	broker, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("open broker: %w", err)
	}
	if broker != nil {
		s.mq = broker
		opts = append(opts, services.WithEventPublisher(mq.NewReportEvents(broker, cfg.MQ.Channel)))
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if objects != nil {
		opts = append(opts, services.WithObjectStore(objects, cfg.MaxAttachmentBytes))
	}

	svcs := NewServices(repos, logger, opts...)
	if err := EnsureAdmin(ctx, svcs.Users, cfg.BootstrapAdmin); err != nil {
		s.close()
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	s.router = NewRouter(logger, svcs, RouterConfig{
		JWTSecret:          jwtSecret,
		TokenTTL:           cfg.TokenTTL,
		MaxAttachmentBytes: cfg.MaxAttachmentBytes,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// RouterConfig carries the HTTP-level settings of the router.
type RouterConfig struct {
	JWTSecret          string
	TokenTTL           time.Duration
	MaxAttachmentBytes int64
}

// NewRouter mounts every route over svcs.
func NewRouter(logger zerolog.Logger, svcs Services, cfg RouterConfig) *chi.Mux {
	authHandler := handlers.NewAuthHandler(svcs.Users, cfg.JWTSecret, cfg.TokenTTL)
	reportHandler := handlers.NewReportHandler(svcs.Reports, cfg.MaxAttachmentBytes)
	planningHandler := handlers.NewPlanningHandler(svcs.Planning, svcs.Reports)
	userHandler := handlers.NewUserHandler(svcs.Users, svcs.Reports)
	dashboardHandler := handlers.NewDashboardHandler(svcs.Aggregation)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		hlog.NewHandler(logger),
		hlog.RemoteAddrHandler("ip"),
		hlog.RequestIDHandler("req_id", "X-Request-Id"),
		hlog.AccessHandler(accessLog),
		middleware.Recoverer,
		middleware.Timeout(requestTimeout),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler)
	})
	router.Group(func(r chi.Router) {
		r.Use(authHandler.RequireAuth)
		r.Route("/reports", func(r chi.Router) {
			handlers.ReportRouter(r, reportHandler)
		})
		r.Route("/policies", func(r chi.Router) {
			handlers.PolicyRouter(r, planningHandler)
		})
		r.Route("/teras", func(r chi.Router) {
			handlers.TerasRouter(r, planningHandler)
		})
		r.Route("/strategies", func(r chi.Router) {
			handlers.StrategyRouter(r, planningHandler)
		})
		r.Route("/initiatives", func(r chi.Router) {
			handlers.InitiativeRouter(r, planningHandler)
		})
		r.Route("/regions", func(r chi.Router) {
			handlers.RegionRouter(r, planningHandler)
		})
		r.Route("/users", func(r chi.Router) {
			handlers.UserRouter(r, userHandler)
		})
		r.Route("/dashboard", func(r chi.Router) {
			handlers.DashboardRouter(r, dashboardHandler)
		})
	})
	return router
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Stringer("url", r.URL).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("request")
}

// EnsureAdmin creates the configured Admin account unless an account with
// that email already exists.
func EnsureAdmin(ctx context.Context, users *services.UserService, cfg config.AdminConfig) error {
	email := strings.TrimSpace(cfg.Email)
	if email == "" {
		return nil
	}
	_, err := users.Register(ctx, services.NewUser{
		Email:    email,
		Name:     cfg.Name,
		Role:     string(types.RoleAdmin),
		Password: cfg.Password,
	})
	if errors.Is(err, services.ErrEmailTaken) {
		return nil
	}
	return err
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases the store and broker.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.close()
	return err
}

func (s *Server) close() {
	if s.mq != nil {
		if err := s.mq.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close broker")
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
