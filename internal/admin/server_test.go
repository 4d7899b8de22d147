package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/ircwire/internal/client"
	"github.com/danmuck/ircwire/internal/testutil/testlog"
)

func get(t *testing.T, s *Server, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestHealthAndReady(t *testing.T) {
	testlog.Start(t)
	st := client.NewState()
	s := New(Config{Name: "ircbot"}, st, nil)

	rr := get(t, s, "/health", "")
	if rr.Code != http.StatusOK || decode(t, rr)["service"] != "ircbot" {
		t.Fatalf("health status=%d body=%s", rr.Code, rr.Body.String())
	}

	if rr := get(t, s, "/ready", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before registration, got %d", rr.Code)
	}
	client.Set(st, client.KeyRegistration, client.Registration{
		Nick:   "tester",
		Phases: []string{"start", "nick_user_sent", "registered"},
	})
	rr = get(t, s, "/ready", "")
	if rr.Code != http.StatusOK || decode(t, rr)["nick"] != "tester" {
		t.Fatalf("ready status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestStateRequiresToken(t *testing.T) {
	testlog.Start(t)
	st := client.NewState()
	client.Set(st, client.KeyAccount, "tester")
	s := New(Config{Name: "ircbot", Token: "s3cret"}, st, func() map[string]any {
		return map[string]any{"server": "irc.test:6697", "attempt": 1}
	})

	if rr := get(t, s, "/state", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	if rr := get(t, s, "/state", "wrong"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rr.Code)
	}
	rr := get(t, s, "/state", "s3cret")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := decode(t, rr)
	state, _ := body["state"].(map[string]any)
	if state["account"] != "tester" {
		t.Fatalf("state=%v", body["state"])
	}
	conn, _ := body["connection"].(map[string]any)
	if conn["server"] != "irc.test:6697" {
		t.Fatalf("connection=%v", body["connection"])
	}
}

func TestStateOpenWithoutToken(t *testing.T) {
	testlog.Start(t)
	s := New(Config{Name: "ircbot"}, client.NewState(), nil)
	if rr := get(t, s, "/state", ""); rr.Code != http.StatusOK {
		t.Fatalf("expected open /state, got %d", rr.Code)
	}
}

func TestMetricsExposed(t *testing.T) {
	testlog.Start(t)
	s := New(Config{Name: "ircbot"}, client.NewState(), nil)
	get(t, s, "/health", "")
	rr := get(t, s, "/metrics", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "ircwire_http_requests_total") {
		t.Fatalf("metrics status=%d", rr.Code)
	}
}
