package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonny/screener/pkg/config"
)

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(&config.Config{})
	assert.ErrorIs(t, err, ErrNoDatabaseURL)
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(&config.Config{Database: config.DatabaseConfig{URL: "://not a url"}})
	assert.Error(t, err)
}

func TestEnsureSchemaAndHealth(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if testing.Short() || url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	db, err := New(&config.Config{Database: config.DatabaseConfig{URL: url, MaxConns: 4, MinConns: 1}})
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, db.EnsureSchema(ctx))
	require.NoError(t, db.EnsureSchema(ctx))

	status, err := db.HealthCheck(ctx)
	require.NoError(t, err)
	assert.True(t, status.Healthy)
}
