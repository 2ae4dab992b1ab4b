// Package server contains the HTTP handlers, session handling and route table.
package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"warbler/internal/config"
	"warbler/internal/database"
	"warbler/internal/middleware"
	"warbler/internal/models"
	"warbler/internal/notifications"
	"warbler/internal/repository"
	"warbler/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	sessions       *session.Store
	limiter        *middleware.RateLimiter
	notifier       *notifications.Notifier
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	authService    *service.AuthService
	userService    *service.UserService
	followService  *service.FollowService
	messageService *service.MessageService
}

// NewServerWithDeps creates a Server from an open database and an optional Redis client.
// Tests pass an SQLite database and an optional miniredis client.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}

	userRepo := repository.NewUserRepository(db)
	followRepo := repository.NewFollowRepository(db)
	likeRepo := repository.NewLikeRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	notifier := notifications.NewNotifier(redisClient)
	auth := service.NewAuthService(userRepo, cfg.BcryptCost)
	follows := service.NewFollowService(followRepo, userRepo, notifier)

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("warbler"),
		sessions:       newSessionStore(cfg, redisClient),
		limiter:        middleware.NewRateLimiter(redisClient, cfg.Env),
		notifier:       notifier,
		authService:    auth,
		userService:    service.NewUserService(userRepo, follows, messageRepo, auth, cfg.FeedLimit),
		followService:  follows,
		messageService: service.NewMessageService(messageRepo, likeRepo, userRepo, notifier, cfg.FeedLimit),
	}
	return server, nil
}

// NewApp builds the Fiber app with middleware and routes installed.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Warbler",
		ErrorHandler: s.errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		if fe.Code == fiber.StatusNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"template":     tmplNotFound,
				"flashes":      []Flash{},
				"csrf_token":   "",
				"current_user": currentUser(c),
			})
		}
		return models.RespondWithError(c, fe.Code, models.NewValidationError(fe.Message))
	}

	middleware.Logger.ErrorContext(c.UserContext(), "unhandled request error",
		slog.String("path", c.Path()),
		slog.String("error", err.Error()))
	return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	// Tracing first so the request span covers everything below it.
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before anything that can short-circuit so error responses carry its headers.
	app.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.AllowedOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, X-CSRF-Token",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || middleware.RateLimitBypassed(s.config.Env)
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))

	app.Use(NoStore())
	app.Use(s.SessionMiddleware())
	app.Use(s.CurrentUser())
}

// getPost registers handlers for both GET and POST on path.
func getPost(r fiber.Router, path string, handlers ...fiber.Handler) {
	r.Get(path, handlers...)
	r.Post(path, handlers...)
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	app.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Warbler Metrics Dashboard",
	}))

	app.Get("/", s.Home)

	app.Get("/signup", s.SignupPage)
	app.Post("/signup", s.limiter.Limit("signup", 5, 10*time.Minute), s.Signup)
	app.Get("/login", s.LoginPage)
	app.Post("/login", s.limiter.Limit("login", 10, 5*time.Minute), s.Login)
	app.Post("/logout",
		s.loginRequired("You need to be logged in to logout!", "/login"),
		s.CSRFProtected(),
		s.Logout)

	auth := s.LoginRequired()
	csrf := s.CSRFProtected()

	users := app.Group("/users", auth)
	users.Get("/", s.ListUsers)
	getPost(users, "/profile", s.EditProfile)
	getPost(users, "/delete", csrf, s.DeleteUser)
	getPost(users, "/follow/:id<int>", csrf, s.Follow)
	getPost(users, "/stop-following/:id<int>", csrf, s.StopFollowing)
	users.Get("/:id<int>/following", s.ShowFollowing)
	users.Get("/:id<int>/followers", s.ShowFollowers)
	users.Get("/:id<int>/likes", s.ShowLikes)
	users.Get("/:id<int>", s.ShowUser)

	messages := app.Group("/messages", auth)
	getPost(messages, "/new", s.NewMessage)
	getPost(messages, "/:id<int>/delete", csrf, s.DeleteMessage)
	getPost(messages, "/:id<int>/like", csrf, s.LikeMessage)
	getPost(messages, "/:id<int>/unlike", csrf, s.UnlikeMessage)
	messages.Get("/:id<int>", s.ShowMessage)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports database and Redis health. Redis is optional, so a
// missing client reads "unavailable" without failing the probe.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus != "healthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Start builds the app, starts the activity subscriber and listens on the configured port.
func (s *Server) Start() error {
	s.shutdownCtx, s.shutdownFn = context.WithCancel(context.Background())
	s.app = s.NewApp()

	err := s.notifier.StartPatternSubscriber(s.shutdownCtx, func(channel string, ev notifications.Event) {
		middleware.Logger.Debug("activity event",
			slog.String("channel", channel),
			slog.String("kind", ev.Kind),
			slog.Any("actor_id", ev.ActorID))
	})
	if err != nil {
		middleware.Logger.Warn("activity subscriber not started", slog.String("error", err.Error()))
	}

	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := database.Close(s.db); err != nil {
		middleware.Logger.Error("error closing database", slog.String("error", err.Error()))
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", err.Error()))
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
