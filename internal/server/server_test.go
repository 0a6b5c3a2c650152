package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papapumpkin/treasury/internal/action"
	"github.com/papapumpkin/treasury/internal/lifecycle"
	"github.com/papapumpkin/treasury/internal/metrics"
	"github.com/papapumpkin/treasury/internal/payments"
	"github.com/papapumpkin/treasury/internal/storage"
	"github.com/papapumpkin/treasury/internal/store"
	"github.com/papapumpkin/treasury/internal/treasury"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	server  *Server
	handler http.Handler
	live    *lifecycle.Live
}

// newFixture builds a server over a memory store. upstream may be nil, in
// which case the payments client has no API key.
func newFixture(t *testing.T, src lifecycle.Source, upstream http.HandlerFunc) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	st, err := store.Open(ctx, storage.NewMemory())
	require.NoError(t, err)
	svc := treasury.New(st, action.DefaultTable(), src, nil)
	svc.Base = ctx

	client := payments.New("http://127.0.0.1:0", "", time.Second)
	if upstream != nil {
		up := httptest.NewServer(upstream)
		t.Cleanup(up.Close)
		client = payments.New(up.URL, "secret", time.Second, payments.WithHTTPClient(up.Client()))
	}
	s := &Server{
		Service:     svc,
		Payments:    client,
		Metrics:     metrics.New(),
		Environment: "test",
		Clock:       func() time.Time { return testNow },
	}
	live, _ := src.(*lifecycle.Live)
	return &fixture{server: s, handler: s.Handler(), live: live}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil)

	w := f.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["environment"])
	assert.Equal(t, false, body["piSdkConfigured"])
	assert.Equal(t, "2026-05-01T12:00:00.000Z", body["timestamp"])
	endpoints, ok := body["endpoints"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/api/payments/approve", endpoints["paymentApprove"])
}

func TestSignin(t *testing.T) {
	t.Parallel()
	upstream := func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"uid":"u-1","username":"alice"}`))
	}

	tests := []struct {
		name     string
		upstream http.HandlerFunc
		body     any
		wantCode int
		wantErr  string
	}{
		{"missing token", upstream, map[string]string{}, http.StatusBadRequest, "Authentication token required"},
		{"no api key", nil, map[string]string{"authToken": "good"}, http.StatusInternalServerError, "Server configuration error"},
		{"rejected token", upstream, map[string]string{"authToken": "bad"}, http.StatusUnauthorized, "Invalid authentication token"},
		{"ok", upstream, map[string]string{"authToken": "good"}, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, nil, tt.upstream)
			w := f.do(t, http.MethodPost, "/api/auth/signin", tt.body)
			assert.Equal(t, tt.wantCode, w.Code)
			body := decode(t, w)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, body["error"])
				return
			}
			assert.Equal(t, true, body["success"])
			assert.Equal(t, map[string]any{"uid": "u-1", "username": "alice"}, body["user"])
		})
	}
}

func TestPaymentRoutes(t *testing.T) {
	t.Parallel()
	upstream := func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/missing/"):
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"payment_not_found"}`))
		case strings.HasSuffix(r.URL.Path, "/approve"):
			_, _ = w.Write([]byte(`{"identifier":"p1","amount":1}`))
		case strings.HasSuffix(r.URL.Path, "/complete"):
			_, _ = w.Write([]byte(`{"identifier":"p1","transaction":{"txid":"t1"}}`))
		case strings.HasSuffix(r.URL.Path, "/incomplete"):
			_, _ = w.Write([]byte(`{"identifier":"p1"}`))
		}
	}
	f := newFixture(t, nil, upstream)

	w := f.do(t, http.MethodPost, "/api/payments/approve", map[string]string{"paymentId": "p1"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["approved"])
	assert.Equal(t, "p1", body["paymentId"])
	assert.Equal(t, float64(1), body["amount"])

	w = f.do(t, http.MethodPost, "/api/payments/complete", map[string]string{"paymentId": "p1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Payment ID and transaction ID required", decode(t, w)["error"])

	w = f.do(t, http.MethodPost, "/api/payments/complete", map[string]string{"paymentId": "p1", "txid": "t1"})
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, true, body["completed"])
	assert.Equal(t, "t1", body["txid"])

	w = f.do(t, http.MethodPost, "/api/payments/incomplete", map[string]string{"paymentId": "p1"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/payments/approve", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Payment ID required", decode(t, w)["error"])

	w = f.do(t, http.MethodPost, "/api/payments/approve", map[string]string{"paymentId": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	body = decode(t, w)
	assert.Equal(t, "Payment approval failed", body["error"])
	assert.Equal(t, map[string]any{"error": "payment_not_found"}, body["details"])
}

func TestPaymentRoutes_NoCredential(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil)
	w := f.do(t, http.MethodPost, "/api/payments/approve", map[string]string{"paymentId": "p1"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Server configuration error", decode(t, w)["error"])
}

func TestActions_CreateListGet(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil)

	w := f.do(t, http.MethodPost, "/api/actions", map[string]any{"type": "Budget Transfer", "amount": 50, "note": "Q1", "userId": "alice"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created action.TreasuryAction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, action.StatusCreated, created.Status)
	assert.Equal(t, 50.0, created.Amount)
	assert.True(t, created.Manifest.ApprovalRequired)

	w = f.do(t, http.MethodPost, "/api/actions", map[string]any{"type": "", "amount": 10, "userId": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Action type is required", body["error"])
	assert.Equal(t, "invalid_type", body["code"])

	w = f.do(t, http.MethodGet, "/api/actions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Actions    []action.TreasuryAction `json:"actions"`
		StatusFlow []action.Status         `json:"statusFlow"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Actions, 1)
	assert.Equal(t, created.ID, list.Actions[0].ID)
	assert.Equal(t, action.StatusFlow(), list.StatusFlow)

	w = f.do(t, http.MethodGet, "/api/actions/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodGet, "/api/actions/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func waitStatus(t *testing.T, st *store.Store, id string, want action.Status) action.TreasuryAction {
	t.Helper()
	var got action.TreasuryAction
	require.Eventually(t, func() bool {
		a, err := st.Get(id)
		got = a
		return err == nil && a.Status == want
	}, 3*time.Second, 5*time.Millisecond)
	return got
}

func waitPending(t *testing.T, live *lifecycle.Live, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, p := range live.Pending() {
			if p == id {
				return true
			}
		}
		return false
	}, 3*time.Second, 5*time.Millisecond)
}

func TestSignals_LiveFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t, lifecycle.NewLive(), nil)
	st := f.server.Service.Store

	w := f.do(t, http.MethodPost, "/api/actions", map[string]any{"type": "Reserve Allocation", "amount": 10, "userId": "alice"})
	require.Equal(t, http.StatusCreated, w.Code)
	var a action.TreasuryAction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &a))
	waitPending(t, f.live, a.ID)

	w = f.do(t, http.MethodPost, "/api/actions/"+a.ID+"/signals", map[string]string{"kind": "ready_for_approval"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/actions/"+a.ID+"/signals", map[string]string{"kind": "ready_for_approval", "paymentRef": "pay-1"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	waitStatus(t, st, a.ID, action.StatusApproved)

	w = f.do(t, http.MethodPost, "/api/actions/"+a.ID+"/signals", map[string]string{"kind": "ready_for_completion", "paymentRef": "pay-1", "txRef": "tx-1"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	got := waitStatus(t, st, a.ID, action.StatusSubmitted)
	assert.Equal(t, "pay-1", got.RuntimeEvidence.WalletSignature)
	assert.Equal(t, "tx-1", got.RuntimeEvidence.BlockchainTxID)

	w = f.do(t, http.MethodPost, "/api/actions/"+a.ID+"/signals", map[string]string{"kind": "cancelled"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/api/actions/nope/signals", map[string]string{"kind": "cancelled"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSignals_RequireLiveSource(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil)
	w := f.do(t, http.MethodPost, "/api/actions/any/signals", map[string]string{"kind": "cancelled"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCancel(t *testing.T) {
	t.Parallel()
	f := newFixture(t, lifecycle.NewLive(), nil)
	st := f.server.Service.Store

	w := f.do(t, http.MethodPost, "/api/actions", map[string]any{"type": "Emergency Fund", "amount": 3, "userId": "bob"})
	require.Equal(t, http.StatusCreated, w.Code)
	var a action.TreasuryAction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &a))
	waitPending(t, f.live, a.ID)

	w = f.do(t, http.MethodPost, "/api/actions/"+a.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cancelled action.TreasuryAction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cancelled))
	assert.Equal(t, action.StatusFailed, cancelled.Status)
	got, err := st.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, action.StatusFailed, got.Status)
	assert.Nil(t, got.ApprovedAt)
	assert.NotNil(t, got.FailedAt)

	w = f.do(t, http.MethodPost, "/api/actions/"+a.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = f.do(t, http.MethodPost, "/api/actions/nope/cancel", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil)
	f.do(t, http.MethodGet, "/api/health", nil)

	w := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `treasury_http_requests_total{code="200",route="/api/health"} 1`)
}
