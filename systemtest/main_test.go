package systemtest

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	internalhttp "github.com/gpufleet/fleet/internal/api/http"
	"github.com/gpufleet/fleet/internal/auth"
	"github.com/gpufleet/fleet/internal/commands"
	"github.com/gpufleet/fleet/internal/db"
	"github.com/gpufleet/fleet/internal/registry"
	"github.com/gpufleet/fleet/internal/telemetry"
	"github.com/gpufleet/fleet/internal/users"
	"github.com/gpufleet/fleet/systemtest/postgres"
	"github.com/gpufleet/fleet/systemtest/tests"
)

const jwtSecret = "systemtest-secret"

// TestSystemIntegration runs the coordinator against a real Postgres
// and drives it the way agents and operators do, over actual HTTP.
func TestSystemIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping system test in short mode")
	}

	ctx := context.Background()

	container, dbURL, err := postgres.Start(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, postgres.Terminate(context.Background(), container))
	})

	require.NoError(t, db.RunMigrations(dbURL))

	pool, err := db.InitDB(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	services := &internalhttp.Services{
		Registry:  registry.NewService(registry.NewPostgresStore(pool)),
		Commands:  commands.NewService(commands.NewPostgresStore(pool)),
		Telemetry: telemetry.NewService(telemetry.NewPostgresStore(pool)),
		Users:     users.NewService(users.NewPostgresStore(pool)),
		JWT:       auth.Config{Secret: jwtSecret, ExpiryHours: 1},
	}

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	internalhttp.SetupRoute(engine, services)

	server := httptest.NewServer(engine)
	t.Cleanup(server.Close)

	t.Run("HealthCheck", func(t *testing.T) { tests.TestHealthCheck(t, server.URL) })
	t.Run("AgentDispatch", func(t *testing.T) { tests.TestAgentDispatch(t, server.URL) })
	t.Run("StopCommand", func(t *testing.T) { tests.TestStopCommand(t, server.URL) })
}
