package http

import (
	"context"
	"log/slog"
	nethttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/velomarket/deliveryhub/internal/auth"
	"github.com/velomarket/deliveryhub/internal/cache"
	"github.com/velomarket/deliveryhub/internal/config"
	"github.com/velomarket/deliveryhub/internal/domain/user"
	"github.com/velomarket/deliveryhub/internal/http/handlers"
	"github.com/velomarket/deliveryhub/internal/http/middlewares"
	"github.com/velomarket/deliveryhub/internal/notifications"
	"github.com/velomarket/deliveryhub/internal/observability"
	"github.com/velomarket/deliveryhub/internal/redisclient"
	"github.com/velomarket/deliveryhub/internal/repo/postgres"
	"github.com/velomarket/deliveryhub/internal/security"
	"github.com/velomarket/deliveryhub/internal/session"
)

func NewRouter(
	log *slog.Logger,
	pool *pgxpool.Pool,
	rdb *redisclient.Client,
	prom *observability.Prom,
	metricsHandler nethttp.Handler,
	cfg config.Config,
) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(log))
	r.Use(otelgin.Middleware("deliveryhub-api"))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middlewares.RequireJSON())
	r.Use(middlewares.MaxBodyBytes(cfg.MaxBodyBytes))

	if prom != nil {
		r.Use(prom.GinHandleMiddleware())
	}

	// health

	pings := map[string]func() error{
		"db": func() error {
			if pool == nil {
				return nil
			}

			ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cancel()

			return pool.Ping(ctx)
		},
	}

	if rdb != nil {
		pings["redis"] = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cancel()

			return rdb.Ping(ctx)
		}
	}

	healthHandler := handlers.NewHealthHandler(pings)
	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/readyz", healthHandler.Readyz)

	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}

	// wire up repositories and the session service

	usersRepo := postgres.NewUsersRepo(pool, prom)
	tokensRepo := postgres.NewRefreshTokensRepo(pool, prom)

	jwtManager := auth.NewManager(cfg.JWTSecret, cfg.AccessTTL())
	refreshSource := auth.NewRefreshTokenSource(cfg.JWTSecret, cfg.RefreshTTL())

	svc := session.NewService(
		usersRepo,
		tokensRepo,
		jwtManager,
		refreshSource,
		security.NewHasher(cfg.BcryptCost),
		notifications.NewLogNotifier(log),
		prom,
		log,
		cfg.MaxRefreshTokens,
	)

	authHandler := handlers.NewAuthHandler(svc, cfg)
	usersHandler := handlers.NewUsersHandler(svc, cache.New(30*time.Second))
	adminHandler := handlers.NewAdminUsersHandler(usersRepo, svc)

	authMw := middlewares.NewAuthMiddleware(jwtManager)

	// credential endpoints get the IP rate limit when redis is wired
	limited := func(h gin.HandlerFunc) gin.HandlerFunc { return h }

	if rdb != nil {
		rl := middlewares.NewRateLimiter(rdb.Raw(), cfg.AuthRateLimit, cfg.AuthRateWindow, log)
		mw := rl.Middleware(middlewares.KeyByIP)

		limited = func(h gin.HandlerFunc) gin.HandlerFunc {
			return func(c *gin.Context) {
				mw(c)

				if !c.IsAborted() {
					h(c)
				}
			}
		}
	}

	authGroup := r.Group("/auth")
	authGroup.POST("/signup", limited(authHandler.SignUp))
	authGroup.POST("/login", limited(authHandler.Login))
	authGroup.POST("/refresh", limited(authHandler.Refresh))
	authGroup.POST("/logout", authHandler.Logout)

	usersGroup := r.Group("/users", authMw.RequireAuth())
	usersGroup.GET("/me", usersHandler.Me)

	adminGroup := r.Group("/admin", authMw.RequireAuth(), authMw.RequireRole(user.RoleAdmin))
	adminGroup.GET("/users", adminHandler.List)
	adminGroup.GET("/users/:id", adminHandler.Get)

	return r
}
