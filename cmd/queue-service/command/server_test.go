package command

import (
	"context"
	"testing"
	"time"

	"qfree/queue-service/internal/config"
	"qfree/queue-service/internal/estimator"
	"qfree/queue-service/internal/logging"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEstimatorLayers(t *testing.T) {
	logger := logging.Discard()

	assert.IsType(t, estimator.Linear{}, buildEstimator(config.Config{}, nil, logger))

	remote := buildEstimator(config.Config{PredictorURL: "http://predictor.local", PredictorTimeout: time.Second}, nil, logger)
	assert.IsType(t, &estimator.Remote{}, remote)

	client, _ := redismock.NewClientMock()
	cached := buildEstimator(config.Config{EstimateCacheTTL: time.Minute}, client, logger)
	assert.IsType(t, &estimator.Cached{}, cached)

	noTTL := buildEstimator(config.Config{}, client, logger)
	assert.IsType(t, estimator.Linear{}, noTTL)
}

func TestOpenBackendRejectsUnknown(t *testing.T) {
	cmd := Server{Logger: logging.Discard()}

	_, _, err := cmd.openBackend(context.Background(), config.Config{StoreBackend: "sqlite"})
	require.Error(t, err)

	_, _, err = cmd.openBackend(context.Background(), config.Config{StoreBackend: config.BackendPostgres})
	require.Error(t, err)

	backend, closeBackend, err := cmd.openBackend(context.Background(), config.Config{StoreBackend: config.BackendMemory})
	require.NoError(t, err)
	require.NotNil(t, backend)
	closeBackend()
}

func TestMigrateRequiresDSN(t *testing.T) {
	cmd := Migrate{Logger: logging.Discard()}
	err := cmd.main(context.Background(), config.Config{MigrationsPath: "migrations"}, "up")
	require.Error(t, err)
}

func TestRootServesByDefault(t *testing.T) {
	cfg := config.Config{StoreBackend: "sqlite"}
	for _, args := range [][]string{{}, {"serve"}} {
		root := Root(context.Background(), cfg, logging.Discard())
		root.SetArgs(args)
		err := root.Execute()
		require.Error(t, err, "args %v", args)
		assert.Contains(t, err.Error(), `unknown store backend "sqlite"`)
	}
}

func TestRootRejectsUnknownArgs(t *testing.T) {
	root := Root(context.Background(), config.Config{}, logging.Discard())
	root.SetArgs([]string{"bogus"})
	require.Error(t, root.Execute())
}
