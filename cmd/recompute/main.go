// Command recompute rebuilds the rating records of one period from the
// stored preference history. It is safe to run repeatedly, e.g. from cron:
//
//	recompute -period weekly
//
// Only preferences a feedback worker has claimed are replayed. An all_time
// rebuild from here does not wait for updates in flight on running servers;
// use the admin endpoint for that, or run it with the servers stopped.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	feedbackrepo "llm-arena/backend/feedback/repository"
	"llm-arena/backend/pkg/config"
	"llm-arena/backend/pkg/logger"
	"llm-arena/backend/rating/models"
	ratingrepo "llm-arena/backend/rating/repository"
	"llm-arena/backend/rating/service"
)

func main() {
	period := flag.String("period", string(models.PeriodWeekly), "rating period to rebuild: daily, weekly, monthly or all_time")
	timeout := flag.Duration("timeout", 10*time.Minute, "give up after this long")
	flag.Parse()

	if !models.Period(*period).Valid() {
		fmt.Fprintf(os.Stderr, "unknown period %q\n", *period)
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.New()
	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"
	log := logger.New(logConfig).WithComponent("recompute-cli")
	logger.SetGlobal(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	db, err := config.NewDB()
	if err != nil {
		log.LogError(err, "Failed to initialize database")
		os.Exit(1)
	}

	recomputer := service.NewRecomputer(
		ratingrepo.NewGormStore(db),
		feedbackrepo.NewGormPreferenceRepository(db),
		log,
	)

	started := time.Now()
	written, err := recomputer.RecomputeAllRatings(ctx, models.Period(*period))
	if err != nil {
		log.LogError(err, "Recompute failed", "period", *period)
		os.Exit(1)
	}
	log.Info("Recompute finished", "period", *period, "records", written, "took", time.Since(started).String())
}
