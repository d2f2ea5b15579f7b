// internal/api/api_integration_test.go
package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "mentor-points/internal"
)

// testApp is the global application instance for testing.
var testApp *app.Application

// testServer is the httptest server.
var testServer *httptest.Server

// TestMain is the special entry point for Go tests, executed once before all tests.
func TestMain(m *testing.M) {
	// 1. Point the application at a private in-memory SQLite database.
	setupEnvVars()

	// 2. Initialize the application.
	testApp = app.NewApplication("")
	if err := testApp.Initialize(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize test application: %v\n", err)
		os.Exit(1) // Exit tests if initialization fails
	}

	// 3. Start an httptest server to test the HTTP handling layer.
	testServer = httptest.NewServer(testApp.HTTPHandler)

	// 4. Run all tests.
	code := m.Run()

	// 5. Shut down application resources after tests (e.g., database connections).
	testServer.Close()
	if err := testApp.Shutdown(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to shutdown test application: %v\n", err)
		os.Exit(1)
	}

	os.Exit(code)
}

// setupEnvVars selects the embedded database and disables everything external.
func setupEnvVars() {
	os.Setenv("DB_DRIVER", "sqlite")
	os.Setenv("DB_PATH", ":memory:")
	os.Setenv("DB_AUTO_MIGRATE", "true")
	os.Setenv("LEDGER_LOCK_BACKEND", "memory")
	os.Setenv("LEDGER_ALLOW_NEGATIVE_BALANCE", "false")
	os.Setenv("SWEEP_ENABLED", "false")
	os.Setenv("AMQP_URL", "")
	if os.Getenv("LOG_LEVEL") == "" {
		os.Setenv("LOG_LEVEL", "error")
	}
}

// clearDatabase removes all rows so each test starts from an empty ledger.
func clearDatabase(t *testing.T) {
	// Order is important due to foreign key dependencies.
	tables := []string{"point_transactions", "point_accounts"}
	for _, table := range tables {
		_, err := testApp.DB.Exec(fmt.Sprintf("DELETE FROM %s", table))
		require.NoError(t, err, "Failed to clear table %s", table)
	}
}

// makeRequest helper function: sends an HTTP request to the test server.
func makeRequest(t *testing.T, method, path string, body io.Reader) (*http.Response, string) {
	req, err := http.NewRequest(method, testServer.URL+path, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	// The caller closes the body.
	return resp, string(respBody)
}

func decodeMap(t *testing.T, body string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &m), body)
	return m
}

func decimalField(t *testing.T, m map[string]interface{}, key string) decimal.Decimal {
	t.Helper()
	raw, ok := m[key].(string)
	require.True(t, ok, "field %s should be a decimal string, got %v", key, m[key])
	d, err := decimal.NewFromString(raw)
	require.NoError(t, err)
	return d
}

func postEntry(t *testing.T, owner, op, amount, reason string) (int, map[string]interface{}) {
	t.Helper()
	resp, body := makeRequest(t, http.MethodPost, fmt.Sprintf("/accounts/%s/%s", owner, op),
		strings.NewReader(fmt.Sprintf(`{"amount": "%s", "reason": "%s"}`, amount, reason)))
	defer resp.Body.Close()
	return resp.StatusCode, decodeMap(t, body)
}

func getBalance(t *testing.T, owner string) decimal.Decimal {
	t.Helper()
	resp, body := makeRequest(t, http.MethodGet, fmt.Sprintf("/accounts/%s/balance", owner), nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decimalField(t, decodeMap(t, body), "balance")
}

func assertReconciled(t *testing.T, owner string) {
	t.Helper()
	resp, body := makeRequest(t, http.MethodGet, fmt.Sprintf("/accounts/%s/reconcile", owner), nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decodeMap(t, body)["consistent"], body)
}

// TestAwardAndDeductIntegration tests the award and deduct endpoints.
func TestAwardAndDeductIntegration(t *testing.T) {
	clearDatabase(t)

	t.Run("UnknownOwnerHasZeroBalance", func(t *testing.T) {
		assert.True(t, getBalance(t, "nobody").IsZero())
	})

	t.Run("AwardCreatesAccount", func(t *testing.T) {
		status, resp := postEntry(t, "alice", "award", "100", "daily_login")
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "Points awarded", resp["message"])
		assert.True(t, decimalField(t, resp, "new_balance").Equal(decimal.NewFromInt(100)))
		assert.True(t, getBalance(t, "alice").Equal(decimal.NewFromInt(100)))
	})

	t.Run("Deduct", func(t *testing.T) {
		status, resp := postEntry(t, "alice", "deduct", "30", "reward_redemption")
		assert.Equal(t, http.StatusOK, status)
		assert.True(t, decimalField(t, resp, "new_balance").Equal(decimal.NewFromInt(70)))
		assert.True(t, decimalField(t, resp, "lifetime_spent").Equal(decimal.NewFromInt(30)))
	})

	t.Run("InsufficientBalance", func(t *testing.T) {
		status, resp := postEntry(t, "alice", "deduct", "1000", "reward_redemption")
		assert.Equal(t, http.StatusPaymentRequired, status)
		assert.Equal(t, "Insufficient points balance", resp["error"])
		assert.True(t, getBalance(t, "alice").Equal(decimal.NewFromInt(70)), "rejected deduct leaves balance unchanged")
	})

	t.Run("InvalidAmount", func(t *testing.T) {
		status, _ := postEntry(t, "alice", "award", "-10", "daily_login")
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("InvalidReason", func(t *testing.T) {
		status, resp := postEntry(t, "alice", "award", "10", "reversal")
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, resp["error"], "unknown reason code")
	})

	assertReconciled(t, "alice")
}

// TestReverseIntegration tests manual reversal through the API.
func TestReverseIntegration(t *testing.T) {
	clearDatabase(t)

	status, resp := postEntry(t, "bob", "award", "40", "achievement_unlocked")
	require.Equal(t, http.StatusOK, status)
	transactionID := resp["transaction"].(map[string]interface{})["id"].(string)

	var reversalID string
	t.Run("Reverse", func(t *testing.T) {
		r, body := makeRequest(t, http.MethodPost, fmt.Sprintf("/transactions/%s/reverse", transactionID),
			strings.NewReader(`{"reason": "fraud"}`))
		defer r.Body.Close()

		assert.Equal(t, http.StatusOK, r.StatusCode)
		m := decodeMap(t, body)
		reversal := m["reversal"].(map[string]interface{})
		reversalID = reversal["id"].(string)
		assert.Equal(t, transactionID, reversal["reversal_of"])
		assert.Equal(t, "reversal", reversal["reason"])
		assert.True(t, getBalance(t, "bob").IsZero())
	})

	t.Run("AlreadyReversed", func(t *testing.T) {
		r, body := makeRequest(t, http.MethodPost, fmt.Sprintf("/transactions/%s/reverse", transactionID),
			strings.NewReader(`{"reason": "fraud"}`))
		defer r.Body.Close()

		assert.Equal(t, http.StatusConflict, r.StatusCode)
		assert.Contains(t, body, "already reversed")
	})

	t.Run("ReversalOfReversal", func(t *testing.T) {
		require.NotEmpty(t, reversalID)
		r, _ := makeRequest(t, http.MethodPost, fmt.Sprintf("/transactions/%s/reverse", reversalID),
			strings.NewReader(`{"reason": "oops"}`))
		defer r.Body.Close()

		assert.Equal(t, http.StatusConflict, r.StatusCode)
	})

	t.Run("NotFound", func(t *testing.T) {
		r, _ := makeRequest(t, http.MethodPost, "/transactions/6f1c0c52-9a43-4d3e-9b0f-5d7e0d1f2a3b/reverse",
			strings.NewReader(`{"reason": "fraud"}`))
		defer r.Body.Close()

		assert.Equal(t, http.StatusNotFound, r.StatusCode)
	})

	assertReconciled(t, "bob")
}

// TestSweepIntegration tests the manually triggered expiration sweep.
func TestSweepIntegration(t *testing.T) {
	clearDatabase(t)

	expiresAt := time.Now().UTC().Add(-time.Minute).Format(time.RFC3339)
	resp, _ := makeRequest(t, http.MethodPost, "/accounts/carol/award",
		strings.NewReader(fmt.Sprintf(`{"amount": "25", "reason": "weekly_streak", "expires_at": "%s"}`, expiresAt)))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status, _ := postEntry(t, "carol", "award", "5", "daily_login")
	require.Equal(t, http.StatusOK, status)

	resp, body := makeRequest(t, http.MethodPost, "/sweeps", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), decodeMap(t, body)["processed"])
	assert.True(t, getBalance(t, "carol").Equal(decimal.NewFromInt(5)))

	resp, body = makeRequest(t, http.MethodPost, "/sweeps", nil)
	resp.Body.Close()
	assert.Equal(t, float64(0), decodeMap(t, body)["processed"], "second sweep finds nothing")

	assertReconciled(t, "carol")
}

// TestTransactionHistoryAndBalanceConsistency tests transaction history and balance consistency.
func TestTransactionHistoryAndBalanceConsistency(t *testing.T) {
	clearDatabase(t)
	start := time.Now().UTC().Add(-time.Hour)

	// Perform a series of operations.
	for _, step := range []struct{ op, amount, reason string }{
		{"award", "500", "referral_signup"},
		{"deduct", "150", "reward_redemption"},
		{"award", "200", "manual_admin_award"},
	} {
		status, _ := postEntry(t, "dana", step.op, step.amount, step.reason)
		require.Equal(t, http.StatusOK, status)
	}

	// Expected final balance: 0 + 500 - 150 + 200 = 550
	expectedFinalBalance := decimal.NewFromInt(550)

	// 1. Get current balance.
	currentBalance := getBalance(t, "dana")
	assert.True(t, expectedFinalBalance.Equal(currentBalance), "Current balance should match expected final balance")

	// 2. Get transaction history.
	respHistory, bodyHistory := makeRequest(t, http.MethodGet, "/accounts/dana/transactions?limit=10&offset=0", nil)
	defer respHistory.Body.Close()
	assert.Equal(t, http.StatusOK, respHistory.StatusCode)
	historyMap := decodeMap(t, bodyHistory)

	transactionsData := historyMap["data"].([]interface{})
	assert.Len(t, transactionsData, 3, "Should have 3 transactions")
	assert.Equal(t, float64(3), historyMap["total_count"])

	// 3. Calculate balance from transaction history.
	calculated := decimal.Zero
	for _, txInterface := range transactionsData {
		calculated = calculated.Add(decimalField(t, txInterface.(map[string]interface{}), "delta"))
	}

	// 4. Compare the two balances for consistency.
	assert.True(t, currentBalance.Equal(calculated), "Balance derived from history should match current balance")

	// 5. Period totals.
	window := fmt.Sprintf("?from=%s&to=%s", start.Format(time.RFC3339), time.Now().UTC().Add(time.Hour).Format(time.RFC3339))
	respEarned, bodyEarned := makeRequest(t, http.MethodGet, "/accounts/dana/earned"+window, nil)
	defer respEarned.Body.Close()
	require.Equal(t, http.StatusOK, respEarned.StatusCode)
	assert.True(t, decimalField(t, decodeMap(t, bodyEarned), "total").Equal(decimal.NewFromInt(700)))

	respSpent, bodySpent := makeRequest(t, http.MethodGet, "/accounts/dana/spent"+window, nil)
	defer respSpent.Body.Close()
	require.Equal(t, http.StatusOK, respSpent.StatusCode)
	assert.True(t, decimalField(t, decodeMap(t, bodySpent), "total").Equal(decimal.NewFromInt(150)))
}

// TestConcurrentAwardsIntegration fires parallel awards at one owner.
func TestConcurrentAwardsIntegration(t *testing.T) {
	clearDatabase(t)
	const workers = 20

	var wg sync.WaitGroup
	statuses := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodPost, testServer.URL+"/accounts/erin/award",
				strings.NewReader(`{"amount": "1", "reason": "daily_login"}`))
			if err != nil {
				statuses <- 0
				return
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				statuses <- 0
				return
			}
			resp.Body.Close()
			statuses <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)

	for status := range statuses {
		assert.Equal(t, http.StatusOK, status)
	}
	assert.True(t, getBalance(t, "erin").Equal(decimal.NewFromInt(workers)))
	assertReconciled(t, "erin")
}
