package db

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/oggyb/muzz-introductions/internal/domain"
	"github.com/oggyb/muzz-introductions/internal/repository"
	"github.com/oggyb/muzz-introductions/internal/store"
)

// GrantFunc credits the signup bonus to a freshly created user.
type GrantFunc func(ctx context.Context, userID string) error

var (
	seedJobs    = []string{"designer", "engineer", "teacher", "nurse", "chef", "lawyer"}
	seedRegions = []string{"Seoul", "Busan", "Incheon", "Daegu"}
	seedAges    = []string{"20-29", "25-35", "30-39"}
)

// SeedDemoUsers populates the store with n demo users able to request matching.
//
// Behavior:
//  1. Creates user1..userN with bcrypt-hashed password "password", a profile,
//     preferences and contact details. Existing users are left untouched.
//  2. Calls grant for every user it created, so the signup bonus goes through
//     the points ledger and shows up in their history.
//
// It returns the ids of the users it created.
func SeedDemoUsers(ctx context.Context, repos *repository.Repositories, n int, grant GrantFunc, log *slog.Logger) ([]string, error) {
	if log == nil {
		log = slog.Default()
	}
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	var created []string
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("user%d", i)
		u := domain.User{
			UserID:         id,
			HasProfile:     true,
			HasPreferences: true,
			Status:         domain.UserGreen,
			Profile: domain.Profile{
				Name:   fmt.Sprintf("User %d", i),
				Job:    seedJobs[r.Intn(len(seedJobs))],
				Region: seedRegions[r.Intn(len(seedRegions))],
				Photos: []string{fmt.Sprintf("photos/%s/1.jpg", id)},
			},
			Preferences:  map[string]string{"ageRange": seedAges[r.Intn(len(seedAges))]},
			Contact:      domain.Contact{Phone: fmt.Sprintf("010-0000-%04d", i), Instagram: "@" + id},
			PasswordHash: string(hash),
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := repos.Users.Create(ctx, u); err != nil {
			if store.IsConflict(err) {
				continue
			}
			return created, fmt.Errorf("failed to seed user %s: %w", id, err)
		}
		if grant != nil {
			if err := grant(ctx, id); err != nil {
				return created, fmt.Errorf("failed to grant signup bonus to %s: %w", id, err)
			}
		}
		created = append(created, id)
	}

	log.Info("seeded demo users", "created", len(created), "requested", n)
	return created, nil
}
