// Command lincon runs the notes-to-LinkedIn pipeline daemon: the operator
// HTTP channel, the cron triggers, and the browser automation client.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/linconhq/lincon/internal/app"
	"github.com/linconhq/lincon/internal/blob"
	"github.com/linconhq/lincon/internal/config"
	"github.com/linconhq/lincon/internal/dialogue"
	"github.com/linconhq/lincon/internal/lifecycle"
	"github.com/linconhq/lincon/internal/llm"
	"github.com/linconhq/lincon/internal/logging"
	"github.com/linconhq/lincon/internal/notify"
	"github.com/linconhq/lincon/internal/operator"
	"github.com/linconhq/lincon/internal/poster"
	"github.com/linconhq/lincon/internal/record"
	"github.com/linconhq/lincon/internal/scheduler"
	"github.com/linconhq/lincon/internal/session"
)

func main() {
	logger := logging.New()

	cfg, err := config.Load()
	if err != nil {
		if os.IsNotExist(err) {
			cfg = config.Default()
			if err := cfg.Save(); err != nil {
				logger.WithError(err).Warn("could not save default config")
			} else {
				path, _ := config.ConfigPath()
				logger.WithField("path", path).Info("created default config")
			}
		} else {
			logger.WithError(err).Warn("could not load config, using defaults")
			cfg = config.Default()
		}
	}

	dataDir := cfg.Storage.DataDir
	if dataDir == "" {
		dataDir, err = config.DataDir()
		if err != nil {
			logger.WithError(err).Fatal("no usable data directory")
		}
	}

	records, err := record.Open(filepath.Join(dataDir, "lincon.db"))
	if err != nil {
		logger.WithError(err).Fatal("could not open record store")
	}
	defer records.Close()

	blobs := blob.NewStore(blob.DefaultDir(dataDir))
	sessions := session.NewStore(session.DefaultPath(dataDir))

	client := poster.New(sessions, cfg.LinkedIn.Headless,
		time.Duration(cfg.LinkedIn.ChallengeGraceSeconds)*time.Second,
		filepath.Join(dataDir, "screenshots"),
		logging.ForComponent(logger, "poster"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Initialize(ctx); err != nil {
		logger.WithError(err).Fatal("browser init failed")
	}
	defer client.Close()

	drafter := llm.New(cfg.Drafting.APIKey, cfg.Drafting.Model, logging.ForComponent(logger, "llm"))
	notifier := notify.NewFromConfig(cfg.Operator.WebhookURL, logging.ForComponent(logger, "notify"))
	coord := dialogue.New()
	machine := lifecycle.New(records, client, drafter, blobs,
		cfg.Schedule.DefaultPostHour, logging.ForComponent(logger, "lifecycle"))

	a := app.New(cfg.Operator.OperatorID, cfg.LinkedIn.Email, cfg.LinkedIn.Password,
		cfg.Drafting.BatchSize, records, blobs, coord, machine, drafter, client,
		notifier, logging.ForComponent(logger, "app"))

	sched, err := scheduler.New(cfg.Schedule.Timezone, logging.ForComponent(logger, "scheduler"))
	if err != nil {
		logger.WithError(err).Fatal("could not create scheduler")
	}
	jobs := []struct {
		name string
		at   string
		run  scheduler.Job
	}{
		{"daily-prompt", cfg.Schedule.DailyPromptTime, a.DailyPrompt},
		{"classify-batch", cfg.Schedule.ClassifyTime, a.ClassifyBatch},
		{"refresh-session", cfg.Schedule.SessionCheckTime, a.RefreshSession},
	}

	// "lincon run <job>" fires one job immediately and exits.
	if len(os.Args) > 2 && os.Args[1] == "run" {
		for _, j := range jobs {
			if j.name == os.Args[2] {
				if err := sched.RunNow(j.name, j.run); err != nil {
					logger.WithError(err).Fatal("job failed")
				}
				return
			}
		}
		logger.WithField("job", os.Args[2]).Fatal("unknown job")
	}

	for _, j := range jobs {
		if err := sched.AddDailyJob(j.name, j.at, j.run); err != nil {
			logger.WithError(err).WithField("job", j.name).Fatal("could not schedule job")
		}
	}
	sched.Start()
	defer sched.Stop()
	for _, info := range sched.ListJobs() {
		logger.WithField("job", info.Name).WithField("next_run", info.NextRun).Info("job scheduled")
	}

	server := operator.NewServer(cfg.Operator.ListenAddr, a.HandleMessage,
		logging.ForComponent(logger, "operator"))

	logger.WithField("addr", cfg.Operator.ListenAddr).Info("lincon starting")
	if err := server.Run(ctx); err != nil {
		logger.WithError(err).Fatal("operator server failed")
	}
	logger.Info("lincon stopped")
}
