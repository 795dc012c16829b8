package walletlock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/stretchr/testify/require"

	"github.com/escrowlabs/escrowd/pkg/config"
	"github.com/escrowlabs/escrowd/pkg/database"
	"github.com/escrowlabs/escrowd/pkg/domain"
)

// Exercising Acquire's race-free UPDATE and the reaper's reclaim logic
// needs a real serializable-capable Postgres; skip when no test database
// is configured, mirroring the rest of the repository test suite.
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

func TestPickAndAcquireWithNoCandidatesReturnsErrNoWalletAvailable(t *testing.T) {
	if testClient == nil {
		t.Skip("test database not configured")
	}

	repos := database.NewRepositories(testClient)
	locker := New(repos.Wallets)

	ctx := context.Background()
	err := testClient.RunSerializable(ctx, 5*time.Second, func(ctx context.Context, tx *database.Tx) error {
		_, err := locker.PickAndAcquire(ctx, tx, uuid.New(), domain.WalletSelling, time.Now())
		return err
	})
	require.ErrorIs(t, err, ErrNoWalletAvailable)
}
