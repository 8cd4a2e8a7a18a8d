package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"library/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func testConfig() *config.Config {
	return &config.Config{
		AppPort:                    ":0",
		DatabaseDriver:             "sqlite",
		DatabaseDSN:                fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String()),
		JWTSecret:                  "test-secret",
		JWTTTL:                     time.Hour,
		LoanPeriodDays:             14,
		MaxActiveBorrowings:        3,
		BorrowMaxAttempts:          3,
		BootstrapLibrarianEmail:    "admin@example.com",
		BootstrapLibrarianPassword: "admin-password",
		AvailabilityStreamInterval: time.Second,
	}
}

func TestApplication_HealthAndMetrics(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisURL = "redis://" + mr.Addr()

	a, err := newApplication(cfg)
	require.NoError(t, err)
	defer a.Close()

	resp, err := a.app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"database":"ok"`)
	assert.Contains(t, string(body), `"redis":"ok"`)

	resp, err = a.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "library_http_requests_total")
}

func TestApplication_BootstrapLibrarianAndLogout(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisURL = "redis://" + mr.Addr()

	a, err := newApplication(cfg)
	require.NoError(t, err)
	defer a.Close()

	login := `{"email":"admin@example.com","password":"admin-password"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(login))
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	token := strings.Split(strings.Split(string(body), `"token":"`)[1], `"`)[0]

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = a.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// revocation lives in Redis
	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "revoked_token:"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = a.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestApplication_BadRedisURL(t *testing.T) {
	cfg := testConfig()
	cfg.RedisURL = "not a url"

	_, err := newApplication(cfg)
	assert.Error(t, err)
}

func TestHandleBorrowingEvent(t *testing.T) {
	ok := amqp.Delivery{
		RoutingKey: "borrowing.created",
		Body:       []byte(`{"type":"borrowing.created","borrowing_id":"b1","user_id":"u1","book_id":"k1","due_date":"2026-11-02T00:00:00Z"}`),
	}
	assert.NoError(t, handleBorrowingEvent(ok))
	assert.Error(t, handleBorrowingEvent(amqp.Delivery{Body: []byte("{")}))
}
