package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/opencare/practice-orchestrator/internal/api"
	"github.com/opencare/practice-orchestrator/internal/calendar"
	"github.com/opencare/practice-orchestrator/internal/clock"
	"github.com/opencare/practice-orchestrator/internal/config"
	"github.com/opencare/practice-orchestrator/internal/db"
	"github.com/opencare/practice-orchestrator/internal/jobs"
	"github.com/opencare/practice-orchestrator/internal/lock"
	"github.com/opencare/practice-orchestrator/internal/notify"
	"github.com/opencare/practice-orchestrator/internal/orchestrator"
	"github.com/opencare/practice-orchestrator/internal/scheduling"
	"github.com/opencare/practice-orchestrator/internal/telephony"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "server").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	if cfg.Env == "dev" {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cal, err := calendar.Load(cfg.CalendarPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.CalendarPath).Msg("calendar load error")
	}
	log.Info().Str("business", cal.BusinessName()).Int("providers", len(cal.Providers())).Msg("calendar loaded")

	// Storage: Postgres when a DSN is configured, in-memory otherwise.
	var (
		pool      *pgxpool.Pool
		apptRepo  scheduling.AppointmentRepo
		entryRepo scheduling.WaitlistRepo
		msgRepo   scheduling.MessageRepo
	)
	if cfg.PostgresDSN != "" {
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			log.Fatal().Err(err).Msg("postgres connection error")
		}
		defer pool.Close()

		if err := db.Migrate(rootCtx, pool); err != nil {
			log.Fatal().Err(err).Msg("schema migration error")
		}

		store := scheduling.NewPgStore(pool)
		apptRepo, entryRepo, msgRepo = store.Appointments(), store.Waitlist(), store.Messages()
		log.Info().Msg("connected to Postgres")
	} else {
		store := scheduling.NewMemoryStore()
		apptRepo, entryRepo, msgRepo = store.Appointments(), store.Waitlist(), store.Messages()
		log.Warn().Msg("POSTGRES_DSN not set, using in-memory store")
	}

	// Locking: Redis when an address is configured, in-process otherwise.
	var (
		rdb    *redis.Client
		locker lock.Locker
	)
	if cfg.RedisAddr != "" {
		rdb, err = lock.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error().Err(err).Msg("error closing redis")
			}
		}()
		locker = lock.NewRedisProviderLocker(rdb, cfg.LockTTL)
		log.Info().Msg("connected to Redis")
	} else {
		locker = lock.NewLocalLocker()
		log.Warn().Msg("REDIS_ADDR not set, using in-process provider locks")
	}

	clk := clock.Real()
	dialer := telephony.NewLogDialer(log)
	sender := notify.NewRateLimited(notify.NewLogSender(log), cfg.NotifyPerMinute)

	alloc := scheduling.NewAllocator(apptRepo, locker, cal, clk, log)
	waitlist := scheduling.NewWaitlist(entryRepo, clk, cfg.OfferTTL, log)
	calls := telephony.NewRegistry(dialer, clk, cfg.RingTimeout, log)
	sched := jobs.New(clk, cfg.TickInterval, log)

	facade := orchestrator.New(alloc, waitlist, calls, msgRepo, cal, sender, dialer, sched, clk, log)
	if err := facade.RegisterJobs(); err != nil {
		log.Fatal().Err(err).Msg("job registration error")
	}

	go sched.Run(rootCtx)

	health := api.NewHealthChecker(pool, rdb)
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(facade, health, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}
	log.Info().Msg("server stopped")
}
