package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

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

// The sweep worker runs the two deadline sweeps (expired waitlist offers,
// rung-out call legs) on its own cadence. It shares storage with the server
// through Postgres; pointing it at the in-memory store only makes sense for
// local experiments.
func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "sweep-worker").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	log.Info().Str("env", cfg.Env).Dur("interval", cfg.SweepInterval).Msg("sweep worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cal, err := calendar.Load(cfg.CalendarPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.CalendarPath).Msg("calendar load error")
	}

	var (
		apptRepo  scheduling.AppointmentRepo
		entryRepo scheduling.WaitlistRepo
		msgRepo   scheduling.MessageRepo
	)
	if cfg.PostgresDSN != "" {
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			log.Fatal().Err(err).Msg("postgres connection error")
		}
		defer pool.Close()

		store := scheduling.NewPgStore(pool)
		apptRepo, entryRepo, msgRepo = store.Appointments(), store.Waitlist(), store.Messages()
		log.Info().Msg("connected to Postgres")
	} else {
		store := scheduling.NewMemoryStore()
		apptRepo, entryRepo, msgRepo = store.Appointments(), store.Waitlist(), store.Messages()
		log.Warn().Msg("POSTGRES_DSN not set, sweeping an in-memory store")
	}

	var locker lock.Locker
	if cfg.RedisAddr != "" {
		rdb, err := lock.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection error")
		}
		defer rdb.Close()
		locker = lock.NewRedisProviderLocker(rdb, cfg.LockTTL)
		log.Info().Msg("connected to Redis")
	} else {
		locker = lock.NewLocalLocker()
	}

	clk := clock.Real()
	dialer := telephony.NewLogDialer(log)
	sender := notify.NewRateLimited(notify.NewLogSender(log), cfg.NotifyPerMinute)

	alloc := scheduling.NewAllocator(apptRepo, locker, cal, clk, log)
	waitlist := scheduling.NewWaitlist(entryRepo, clk, cfg.OfferTTL, log)
	calls := telephony.NewRegistry(dialer, clk, cfg.RingTimeout, log)
	sched := jobs.New(clk, cfg.TickInterval, log)

	facade := orchestrator.New(alloc, waitlist, calls, msgRepo, cal, sender, dialer, sched, clk, log)

	runOnce(rootCtx, facade, log)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping sweep worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, facade, log)
		}
	}
}

func runOnce(ctx context.Context, facade *orchestrator.Facade, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := facade.RunSweeps(runCtx); err != nil {
		log.Error().Err(err).Msg("sweep run error")
		return
	}
	log.Info().Dur("took", time.Since(start)).Msg("sweep run complete")
}
