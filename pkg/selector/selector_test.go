package selector

import (
	"context"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/stretchr/testify/require"

	"github.com/escrowlabs/escrowd/pkg/config"
	"github.com/escrowlabs/escrowd/pkg/database"
	"github.com/escrowlabs/escrowd/pkg/domain"
)

// Selecting against real payment sources, wallets and requests needs a
// live serializable-capable Postgres; skip when none is configured.
var testClient *database.Client

func TestMain(m *testing.M) {
	connStr := os.Getenv("ESCROWD_TEST_DB")
	if connStr == "" {
		os.Exit(0)
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

func TestSelectReturnsEmptyBatchWithNoSources(t *testing.T) {
	if testClient == nil {
		t.Skip("test database not configured")
	}

	repos := database.NewRepositories(testClient)
	sel := New(testClient, repos, 5*time.Second)

	batches, err := sel.Select(context.Background(), Filter{
		Action:       domain.ActionFundsLockingRequested,
		WalletType:   domain.WalletSelling,
		ActingParty:  domain.WalletSelling,
		MaxBatchSize: 10,
	}, time.Now())
	require.NoError(t, err)
	require.Empty(t, batches)
}
