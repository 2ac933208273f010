package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/hrygo/omnichat/internal/profile"
	"github.com/hrygo/omnichat/store"
	"github.com/hrygo/omnichat/store/storetest"
)

// startPostgres runs a throwaway PostgreSQL container and returns its DSN.
func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("omnichat"),
		tcpostgres.WithUsername("omnichat"),
		tcpostgres.WithPassword("omnichat"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestDriver(t *testing.T) {
	dsn := startPostgres(t)

	storetest.Run(t, func(t *testing.T) store.Driver {
		ctx := context.Background()
		driver, err := NewDB(&profile.Profile{Driver: "postgres", DSN: dsn})
		require.NoError(t, err)
		require.NoError(t, driver.Migrate(ctx))

		_, err = driver.(*DB).db.ExecContext(ctx, "TRUNCATE message, conversation RESTART IDENTITY CASCADE")
		require.NoError(t, err)
		return driver
	})
}
