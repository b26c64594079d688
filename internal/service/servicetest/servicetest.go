// Package servicetest wires an AppContext for service tests.
package servicetest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/oggyb/muzz-introductions/internal/app"
	"github.com/oggyb/muzz-introductions/internal/config"
	"github.com/oggyb/muzz-introductions/internal/db"
	"github.com/oggyb/muzz-introductions/internal/domain"
	"github.com/oggyb/muzz-introductions/internal/events"
	"github.com/oggyb/muzz-introductions/internal/logger"
	"github.com/oggyb/muzz-introductions/internal/store"
	"github.com/oggyb/muzz-introductions/internal/store/memory"
	"github.com/oggyb/muzz-introductions/internal/store/sqlstore"
)

// Env is a fully wired AppContext plus the handles tests poke at.
type Env struct {
	App      *app.AppContext
	Recorder *events.Recorder
	Clock    *Clock
}

// Clock is a settable time source.
type Clock struct{ t time.Time }

func (c *Clock) Now() time.Time          { return c.t }
func (c *Clock) Set(t time.Time)         { c.t = t }
func (c *Clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// Start is the pinned "now" every Env begins at.
var Start = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

// New builds an Env over the in-memory store.
func New(t *testing.T) *Env {
	t.Helper()
	return newEnv(t, memory.New())
}

// NewSQL builds an Env over an isolated in-memory SQLite database.
func NewSQL(t *testing.T) *Env {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := db.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	return newEnv(t, sqlstore.New(gdb))
}

func newEnv(t *testing.T, s store.Store) *Env {
	t.Helper()

	cfg := config.New()
	cfg.Store.MaxRetries = 10
	cfg.Matching.Cost = 100
	cfg.Matching.SignupBonus = 100
	cfg.Matching.WaitTTL = 14 * 24 * time.Hour

	rec := &events.Recorder{}
	em := events.NewEmitter(rec, 256, logger.Discard())

	appCtx := app.New(cfg, s, em, nil, logger.Discard())
	clock := &Clock{t: Start}
	appCtx.Now = clock.Now

	t.Cleanup(func() {
		em.Close()
		s.Close()
	})
	return &Env{App: appCtx, Recorder: rec, Clock: clock}
}

// User returns an eligible user with the given balance.
func User(id string, points int64) domain.User {
	return domain.User{
		UserID:         id,
		Points:         points,
		HasProfile:     true,
		HasPreferences: true,
		Status:         domain.UserGreen,
		Profile: domain.Profile{
			Name:   "name-" + id,
			Job:    "engineer",
			Region: "Seoul",
			Photos: []string{"photos/" + id + "/1.jpg", "photos/" + id + "/2.jpg"},
		},
		Preferences: map[string]string{"ageRange": "25-35"},
		Contact:     domain.Contact{Phone: "010-0000-" + id, Instagram: "@" + id},
		CreatedAt:   Start,
		UpdatedAt:   Start,
	}
}

// SeedUsers inserts users directly, bypassing the ledger.
func (e *Env) SeedUsers(t *testing.T, users ...domain.User) {
	t.Helper()
	for _, u := range users {
		require.NoError(t, e.App.Repos.Users.Create(context.Background(), u))
	}
}

// Points reads a user's current balance.
func (e *Env) Points(t *testing.T, userID string) int64 {
	t.Helper()
	u, err := e.App.Repos.Users.Get(context.Background(), userID)
	require.NoError(t, err)
	return u.Value.Points
}

// Flush waits until every event emitted so far reached the recorder.
func (e *Env) Flush() {
	e.App.Events.Close()
}
