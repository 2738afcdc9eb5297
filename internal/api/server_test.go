package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"weex-trading-bot/internal/journal"
	"weex-trading-bot/internal/position"
	"weex-trading-bot/internal/risk"
	"weex-trading-bot/internal/weex"
)

func newTestServer(t *testing.T, authEnabled bool) *Server {
	t.Helper()

	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	log := zerolog.Nop()
	exchange := weex.NewMockClient(1000)
	riskMgr := risk.NewManager(risk.DefaultLimits(), log)
	engine := position.NewEngine(position.DefaultConfig(), exchange, riskMgr, nil, log)
	jrnl := journal.New(100, nil, log)
	jrnl.Record("engine started", nil)

	return NewServer(
		ServerConfig{Host: "127.0.0.1", Port: 0, ProductionMode: true},
		AuthConfig{
			Enabled:           authEnabled,
			JWTSecret:         "test-secret",
			AdminUser:         "admin",
			AdminPasswordHash: hash,
			TokenDuration:     time.Hour,
		},
		exchange, engine, riskMgr, jrnl, nil, log,
	)
}

func doRequest(s *Server, method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t, true)
	w := doRequest(s, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
}

func TestLoginAndProtectedAccess(t *testing.T) {
	s := newTestServer(t, true)

	if w := doRequest(s, http.MethodGet, "/api/status", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", w.Code)
	}

	body, _ := json.Marshal(loginRequest{Username: "admin", Password: "wrong"})
	if w := doRequest(s, http.MethodPost, "/api/auth/login", "", body); w.Code != http.StatusUnauthorized {
		t.Errorf("bad password login = %d, want 401", w.Code)
	}

	body, _ = json.Marshal(loginRequest{Username: "admin", Password: "hunter22"})
	w := doRequest(s, http.MethodPost, "/api/auth/login", "", body)
	if w.Code != http.StatusOK {
		t.Fatalf("login = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.TokenType != "Bearer" || resp.AccessToken == "" {
		t.Fatalf("unexpected token response: %+v", resp)
	}

	if w := doRequest(s, http.MethodGet, "/api/status", resp.AccessToken, nil); w.Code != http.StatusOK {
		t.Errorf("authenticated status = %d: %s", w.Code, w.Body.String())
	}

	if w := doRequest(s, http.MethodGet, "/api/status", "garbage", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", w.Code)
	}
}

func TestAuthDisabledSkipsMiddleware(t *testing.T) {
	s := newTestServer(t, false)
	if w := doRequest(s, http.MethodGet, "/api/positions", "", nil); w.Code != http.StatusOK {
		t.Errorf("positions without auth = %d, want 200", w.Code)
	}
}

func TestJournalEndpoint(t *testing.T) {
	s := newTestServer(t, false)

	w := doRequest(s, http.MethodGet, "/api/journal", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("journal = %d", w.Code)
	}
	var resp struct {
		Entries []journal.Entry `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode journal: %v", err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].Message != "engine started" {
		t.Errorf("unexpected entries: %+v", resp.Entries)
	}

	if w := doRequest(s, http.MethodGet, "/api/journal?limit=0", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("limit=0 = %d, want 400", w.Code)
	}
	if w := doRequest(s, http.MethodGet, "/api/journal?limit=abc", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("limit=abc = %d, want 400", w.Code)
	}
}

func TestBalanceEndpoint(t *testing.T) {
	s := newTestServer(t, false)
	w := doRequest(s, http.MethodGet, "/api/balance", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("balance = %d", w.Code)
	}
	var balance weex.AccountBalance
	if err := json.Unmarshal(w.Body.Bytes(), &balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if balance.Equity != 1000 {
		t.Errorf("equity = %v, want 1000", balance.Equity)
	}
}

func TestClosePositionNotFound(t *testing.T) {
	s := newTestServer(t, false)
	w := doRequest(s, http.MethodPost, "/api/positions/cmt_btcusdt/close", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("close missing position = %d, want 404", w.Code)
	}
}

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	token, err := m.Generate("admin")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	username, err := m.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if username != "admin" {
		t.Errorf("username = %q", username)
	}

	other := NewJWTManager("different-secret", time.Hour)
	if _, err := other.Validate(token); err == nil {
		t.Error("token signed with another secret must not validate")
	}
}
