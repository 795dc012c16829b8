package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escrowlabs/escrowd/pkg/config"
	"github.com/escrowlabs/escrowd/pkg/database"
	"github.com/escrowlabs/escrowd/pkg/scheduler"
)

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

func TestHandleLivenessNeedsNoDatabase(t *testing.T) {
	h := NewHealthHandlers(nil, scheduler.New(nil))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	h.HandleLiveness(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)
}

func TestHandleReadinessReflectsDatabaseHealth(t *testing.T) {
	if testClient == nil {
		t.Skip("test database not configured")
	}

	h := NewHealthHandlers(testClient, scheduler.New(nil))

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rr := httptest.NewRecorder()
	h.HandleReadiness(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ready"`)
}

func TestHandleStatusReportsSchedulerState(t *testing.T) {
	if testClient == nil {
		t.Skip("test database not configured")
	}

	sch := scheduler.New(nil)
	sch.Start()
	defer sch.Stop(context.Background())

	h := NewHealthHandlers(testClient, sch)
	request := httptest.NewRequest(http.MethodGet, "/status", nil)
	rr := httptest.NewRecorder()
	h.HandleStatus(rr, request)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"scheduler_state":"running"`)
}
