package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/raindrop/internal/api"
	"github.com/victornm/raindrop/internal/battle"
	"github.com/victornm/raindrop/internal/challenge"
	"github.com/victornm/raindrop/internal/currency"
	"github.com/victornm/raindrop/internal/event"
	"github.com/victornm/raindrop/internal/leaderboard"
	"github.com/victornm/raindrop/internal/notify"
	"github.com/victornm/raindrop/internal/question"
	"github.com/victornm/raindrop/internal/store/postgres"
	"github.com/victornm/raindrop/internal/student"
	"github.com/victornm/raindrop/internal/telemetry"
)

type RedisConfig struct {
	Addrs  []string
	Pass   string
	Prefix string
}

type PostgresConfig struct {
	Addr     string
	User     string
	Pass     string
	Name     string
	MaxConns int32
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s", c.User, c.Pass, c.Addr, c.Name)
}

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Auth struct {
		Secret string
	}

	Redis struct {
		Cache  RedisConfig
		Pubsub RedisConfig
	}

	Postgres PostgresConfig

	Battle struct {
		AllowedSeconds int
		// BonusRate is a decimal string, points per second left.
		BonusRate     string
		QuestionCount int
		ChallengeTTL  time.Duration
	}

	Question struct {
		CacheTTL time.Duration
	}
}

// DefaultConfig holds the values used when neither the file nor the environment sets them.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 8081
	c.Redis.Cache.Prefix = "raindrop:cache"
	c.Redis.Pubsub.Prefix = "raindrop:pubsub"
	c.Postgres.MaxConns = 10
	c.Battle.AllowedSeconds = 30
	c.Battle.BonusRate = "1"
	c.Battle.QuestionCount = 5
	c.Battle.ChallengeTTL = 24 * time.Hour
	c.Question.CacheTTL = 10 * time.Minute
	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			cache  redis.UniversalClient
			pubsub redis.UniversalClient
		}

		postgres *pgxpool.Pool
	}

	service struct {
		challenge   *challenge.Service
		battle      *battle.Service
		leaderboard *leaderboard.Service
		ledger      *currency.Ledger
	}

	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	if c.Auth.Secret == "" {
		return nil, fmt.Errorf("server: auth secret is required")
	}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}
	if err := s.initAPI(); err != nil {
		return nil, fmt.Errorf("server: init api: %w", err)
	}
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(name string, rc RedisConfig) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    rc.Addrs,
			Password: rc.Pass,
		})

		if err := telemetry.MonitorRedis(r, name); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.cache, err = connect("cache", s.c.Redis.Cache)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	s.infra.redis.pubsub, err = connect("pubsub", s.c.Redis.Pubsub)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(s.c.Postgres.DSN())
	if err != nil {
		return err
	}
	if s.c.Postgres.MaxConns > 0 {
		cc.MaxConns = s.c.Postgres.MaxConns
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return err
	}

	s.infra.postgres = db
	return nil
}

func (s *Server) initService() error {
	bonusRate, err := decimal.NewFromString(s.c.Battle.BonusRate)
	if err != nil {
		return fmt.Errorf("battle bonus rate %q: %w", s.c.Battle.BonusRate, err)
	}
	if bonusRate.IsNegative() {
		return fmt.Errorf("battle bonus rate %q: must not be negative", s.c.Battle.BonusRate)
	}

	db := s.infra.postgres
	st := postgres.New(db)
	students := student.NewPostgres(db)
	questions := question.NewCache(question.CacheConfig{
		Bank:   question.NewPostgres(db),
		Redis:  s.infra.redis.cache,
		Prefix: s.c.Redis.Cache.Prefix,
		TTL:    s.c.Question.CacheTTL,
	})

	s.service.ledger = currency.NewLedger(currency.Config{
		Attempts: currency.NewPostgresAttempts(db),
		Battles:  st,
	})

	s.service.challenge = challenge.NewService(challenge.Config{
		EventBus:       s.eb,
		Store:          st,
		Students:       students,
		Questions:      questions,
		Currency:       s.service.ledger,
		QuestionCount:  s.c.Battle.QuestionCount,
		TTL:            s.c.Battle.ChallengeTTL,
		AllowedSeconds: s.c.Battle.AllowedSeconds,
	})

	s.service.battle = battle.NewService(battle.Config{
		EventBus:  s.eb,
		Store:     st,
		Questions: questions,
		BonusRate: decimal.NewNullDecimal(bonusRate),
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Students: students,
		Redis:    s.infra.redis.cache,
		Prefix:   s.c.Redis.Cache.Prefix,
	})

	notify.New(notify.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.pubsub,
		Prefix:   s.c.Redis.Pubsub.Prefix,
	})

	return nil
}

func (s *Server) initAPI() error {
	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	metrics.Observe(s.eb)

	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery(), telemetry.GinLogger(slog.Default()), metrics.GinMiddleware())

	a, err := api.New(api.Config{
		Secret:      []byte(s.c.Auth.Secret),
		Challenge:   s.service.challenge,
		Battle:      s.service.battle,
		Leaderboard: s.service.leaderboard,
		Currency:    s.service.ledger,
	})
	if err != nil {
		return err
	}
	a.Register(e)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}

	s.grpc = grpc.NewServer(telemetry.GRPCServerOptions(slog.Default())...)
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)
	return nil
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	s.infra.postgres.Close()
	for _, r := range []redis.UniversalClient{s.infra.redis.cache, s.infra.redis.pubsub} {
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
