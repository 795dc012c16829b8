package scheduler

import (
	"context"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/stretchr/testify/require"

	"github.com/escrowlabs/escrowd/pkg/config"
	"github.com/escrowlabs/escrowd/pkg/database"
	"github.com/escrowlabs/escrowd/pkg/walletlock"
)

// Exercising the reaper against real leased wallets needs a live
// serializable-capable Postgres; skip when none is configured.
var testClient *database.Client

func TestMain(m *testing.M) {
	connStr := os.Getenv("ESCROWD_TEST_DB")
	if connStr == "" {
		os.Exit(m.Run())
	}

	cfg := &config.Config{DatabaseURL: connStr, DatabaseMaxConns: 5, DatabaseMinConns: 1, DatabaseRequired: true}
	var err error
	testClient, err = database.NewClient(cfg)
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}

	code := m.Run()
	testClient.Close()
	os.Exit(code)
}

func TestWalletReaperJobWithNoStaleLeasesIsANoop(t *testing.T) {
	if testClient == nil {
		t.Skip("test database not configured")
	}

	repos := database.NewRepositories(testClient)
	reaper := walletlock.NewReaper(testClient, repos.Wallets, repos.Transactions, time.Hour, 30*time.Minute, 5*time.Second, nil)
	job := WalletReaperJob(reaper)

	require.NoError(t, job(context.Background(), time.Now()))
}
