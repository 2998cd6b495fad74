package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mikepolyak/fitness-vibe-sub002/internal/activity"
	"github.com/mikepolyak/fitness-vibe-sub002/internal/auth"
	"github.com/mikepolyak/fitness-vibe-sub002/internal/config"
	"github.com/mikepolyak/fitness-vibe-sub002/internal/gamification"
	"github.com/mikepolyak/fitness-vibe-sub002/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	Log    *slog.Logger
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Stream *stream.Hub
}

func NewServer(cfg config.Config, log *slog.Logger, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	if log == nil {
		log = slog.Default()
	}

	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		Log:    log,
		DB:     db,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient, log),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)
	authSvc := auth.NewService(s.Cfg.JWTSecret, s.DB)

	loc, err := s.Cfg.RewardLocation()
	if err != nil {
		s.Log.Warn("unknown reward timezone, using local time", "timezone", s.Cfg.RewardTimezone)
	}

	catalog, err := gamification.LoadCatalog()
	if err != nil {
		s.Log.Warn("badge catalog unavailable, badges disabled", "error", err)
		catalog = nil
	}

	activityStore := activity.NewStore()
	rewards := gamification.NewService(s.DB, s.Redis, gamification.NewEngine(catalog, loc), catalog, activityStore, s.Log, loc)

	activitySvc := activity.NewService(
		s.DB,
		activityStore,
		activity.NewManager(),
		rewards,
		userDirectory{auth: authSvc},
		s.Stream,
		activity.NewCalculator(s.Cfg.DefaultBodyWeightKg),
		s.Log,
	)

	auth.RegisterRoutes(s.App.Group("/auth"), authSvc, jwtMiddleware)
	activity.RegisterRoutes(s.App.Group("/activities"), activitySvc, jwtMiddleware)
	gamification.RegisterRoutes(s.App.Group("/gamification"), rewards, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}

// userDirectory bridges the auth user store into the snapshot lookup
// the activity service takes at session start.
type userDirectory struct {
	auth *auth.Service
}

func (d userDirectory) Snapshot(ctx context.Context, userID string) (activity.UserSnapshot, error) {
	u, err := d.auth.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return activity.UserSnapshot{}, fmt.Errorf("user %s: %w", userID, activity.ErrNotFound)
		}
		return activity.UserSnapshot{}, err
	}
	return activity.UserSnapshot{WeightKg: u.WeightKg, CreatedAt: u.CreatedAt}, nil
}
