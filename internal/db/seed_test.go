package db_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/oggyb/muzz-introductions/internal/db"
	"github.com/oggyb/muzz-introductions/internal/logger"
	"github.com/oggyb/muzz-introductions/internal/repository"
	"github.com/oggyb/muzz-introductions/internal/store/memory"
)

func TestSeedDemoUsers(t *testing.T) {
	ctx := context.Background()
	repos := repository.New(memory.New())

	var granted []string
	grant := func(_ context.Context, id string) error {
		granted = append(granted, id)
		return nil
	}

	ids, err := db.SeedDemoUsers(ctx, repos, 3, grant, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, []string{"user1", "user2", "user3"}, ids)
	assert.Equal(t, ids, granted)

	u, err := repos.Users.Get(ctx, "user2")
	require.NoError(t, err)
	assert.True(t, u.Value.HasProfile)
	assert.True(t, u.Value.Status.CanRequest())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.Value.PasswordHash), []byte("password")))

	// rerun only adds the missing ones
	ids, err = db.SeedDemoUsers(ctx, repos, 4, grant, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, []string{"user4"}, ids)
	assert.Len(t, granted, 4)
}
