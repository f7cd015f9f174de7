package utils

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var loadEnvOnce sync.Once

// loadTestEnv picks up the project .env so MONGO_URI can come from there.
func loadTestEnv() {
	loadEnvOnce.Do(func() {
		_, filename, _, _ := runtime.Caller(0)
		projectRoot := filepath.Join(filepath.Dir(filename), "..", "..")
		if err := godotenv.Load(filepath.Join(projectRoot, ".env")); err != nil {
			_ = godotenv.Load()
		}
	})
}

// TestMongoURI returns MONGO_URI, or skips the test when it is not configured.
func TestMongoURI(t testing.TB) string {
	t.Helper()
	loadTestEnv()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set; skipping MongoDB-backed test")
	}
	return uri
}

// SetupTestDB connects to the test MongoDB and returns a database with the
// given collections dropped. The database is dropped again when the test ends.
func SetupTestDB(t testing.TB, dbName string, collections ...string) *mongo.Database {
	t.Helper()
	uri := TestMongoURI(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err, "Failed to connect to MongoDB")
	require.NoError(t, client.Ping(ctx, nil), "Failed to ping MongoDB")

	db := client.Database(dbName)
	for _, collection := range collections {
		_ = db.Collection(collection).Drop(ctx)
	}

	t.Cleanup(func() {
		cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer ccancel()
		_ = db.Drop(cctx)
		_ = client.Disconnect(cctx)
	})
	return db
}

// SkipIfNoTransactions skips when err says the server cannot run
// multi-document transactions (standalone mongod).
func SkipIfNoTransactions(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		return
	}
	msg := err.Error()
	if strings.Contains(msg, "Transaction numbers are only allowed") || strings.Contains(msg, "replica set") {
		t.Skipf("MongoDB deployment does not support transactions: %v", err)
	}
}
