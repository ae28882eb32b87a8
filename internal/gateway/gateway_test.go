// ABOUTME: Shared test fixture for gateway HTTP tests
// ABOUTME: Real store and wiring with a fake WhatsApp Graph API server

package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/cuideme/care-gateway/internal/auth"
	"github.com/cuideme/care-gateway/internal/config"
	"github.com/cuideme/care-gateway/internal/store"
)

// fakeGraphAPI is a stand-in for the WhatsApp Graph API that records
// outbound sends and can be told to fail.
type fakeGraphAPI struct {
	mu    sync.Mutex
	sends []string // recipient numbers in send order
	fail  bool
}

func (f *fakeGraphAPI) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		f.mu.Lock()
		defer f.mu.Unlock()
		if f.fail {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"message":"something went wrong"}}`))
			return
		}
		f.sends = append(f.sends, gjson.GetBytes(body, "to").String())
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"messages":[{"id":"wamid.test"}]}`))
	})
}

func (f *fakeGraphAPI) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *fakeGraphAPI) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sends))
	copy(out, f.sends)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestGateway builds a gateway against a temp database and a fake
// Graph API, with the AI capability disabled.
func newTestGateway(t *testing.T) (*Gateway, *fakeGraphAPI) {
	t.Helper()

	graph := &fakeGraphAPI{}
	graphSrv := httptest.NewServer(graph.handler())
	t.Cleanup(graphSrv.Close)

	cfg := &config.Config{}
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Database.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.WhatsApp.Token = "test-token"
	cfg.WhatsApp.PhoneNumberID = "12345"
	cfg.WhatsApp.VerifyToken = "test-verify"
	cfg.WhatsApp.APIBase = graphSrv.URL
	cfg.Auth.JWTSecret = "test-jwt-secret"
	cfg.Reminders.Message = "Bom dia! Como você está se sentindo hoje?"
	cfg.Reminders.Secret = "test-cron-secret"

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { gw.store.Close() })

	return gw, graph
}

// seedProfessional creates a panel account and returns a valid bearer token.
func seedProfessional(t *testing.T, gw *Gateway) string {
	t.Helper()

	hash, err := auth.HashPassword("s3cret")
	require.NoError(t, err)
	prof := &store.Professional{Email: "ana@clinica.com", PasswordHash: hash}
	require.NoError(t, gw.store.CreateProfessional(context.Background(), prof))

	token, err := gw.verifier.Generate(prof.ID, prof.Email, time.Hour)
	require.NoError(t, err)
	return token
}
