package main

import (
	"context"
	"flag"
	"os"

	"github.com/oggyb/muzz-introductions/internal/app"
	"github.com/oggyb/muzz-introductions/internal/config"
	"github.com/oggyb/muzz-introductions/internal/db"
	"github.com/oggyb/muzz-introductions/internal/domain"
	"github.com/oggyb/muzz-introductions/internal/events"
	"github.com/oggyb/muzz-introductions/internal/logger"
	"github.com/oggyb/muzz-introductions/internal/service/points"
	"github.com/oggyb/muzz-introductions/internal/store/sqlstore"
)

func main() {
	n := flag.Int("users", 20, "number of demo users")
	flag.Parse()

	// Load configuration
	cfg := config.New()
	logger.InitFromConfig(cfg)
	log := logger.L()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}
	st := sqlstore.New(database)
	defer st.Close()

	emitter := events.NewEmitter(events.LogSink{Logger: log}, 64, log)
	defer emitter.Close()

	appCtx := app.New(cfg, st, emitter, nil, log)
	ledger := points.NewLedger(appCtx)
	grant := func(ctx context.Context, userID string) error {
		_, err := ledger.Credit(ctx, userID, points.Entry{
			Amount:      cfg.Matching.SignupBonus,
			Type:        domain.PointsSignupBonus,
			Description: "signup bonus",
		})
		return err
	}

	ids, err := db.SeedDemoUsers(context.Background(), appCtx.Repos, *n, grant, log)
	if err != nil {
		log.Error("failed to seed", "err", err)
		os.Exit(1)
	}
	log.Info("seeding completed", "users", len(ids))
}
