// ABOUTME: Tests for the panel HTTP API
// ABOUTME: Covers login, auth enforcement, conversation operations and SSE

package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuideme/care-gateway/internal/store"
)

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestLogin(t *testing.T) {
	gw, _ := newTestGateway(t)
	seedProfessional(t, gw)
	handler := gw.buildHandler()

	t.Run("valid credentials", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/auth/login", "",
			LoginRequest{Email: "ana@clinica.com", Password: "s3cret"})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp LoginResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "ana@clinica.com", resp.Email)

		// The token must open the protected surface
		list := doJSON(t, handler, http.MethodGet, "/api/patients", resp.Token, nil)
		assert.Equal(t, http.StatusOK, list.Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/auth/login", "",
			LoginRequest{Email: "ana@clinica.com", Password: "wrong"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/auth/login", "",
			LoginRequest{Email: "ana@clinica.com"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAPIRequiresAuth(t *testing.T) {
	gw, _ := newTestGateway(t)
	handler := gw.buildHandler()

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/patients"},
		{http.MethodGet, "/api/patients/some-id/messages"},
		{http.MethodPost, "/api/patients/some-id/assume-control"},
	}
	for _, p := range paths {
		rec := doJSON(t, handler, p.method, p.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", p.method, p.path)
	}
}

func TestListPatients_AlertRollup(t *testing.T) {
	gw, _ := newTestGateway(t)
	token := seedProfessional(t, gw)
	handler := gw.buildHandler()
	ctx := context.Background()

	require.NoError(t, gw.service.Ingest(ctx, "5511999990000", "Estou com muita dor"))
	require.NoError(t, gw.service.Ingest(ctx, "5522222220000", "Tudo bem por aqui"))

	rec := doJSON(t, handler, http.MethodGet, "/api/patients", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var patients []PatientResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&patients))
	require.Len(t, patients, 2)
	assert.Equal(t, "5511999990000", patients[0].Address)
	assert.True(t, patients[0].HasAlert)
	assert.Equal(t, string(store.ControlModeAutomatic), patients[0].ControlMode)
	assert.False(t, patients[1].HasAlert)
}

func TestReadConversation_ClearsAlerts(t *testing.T) {
	gw, _ := newTestGateway(t)
	token := seedProfessional(t, gw)
	handler := gw.buildHandler()
	ctx := context.Background()

	require.NoError(t, gw.service.Ingest(ctx, "5511999990000", "Estou com febre"))
	patient, err := gw.store.FindOrCreatePatient(ctx, "5511999990000")
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodGet, "/api/patients/"+patient.ID+"/messages", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var messages []MessageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&messages))
	require.Len(t, messages, 1)
	assert.True(t, messages[0].HasAlert)
	assert.Equal(t, store.SenderPatient, messages[0].Sender)

	hasAlert, err := gw.store.HasUnreadAlert(ctx, patient.ID)
	require.NoError(t, err)
	assert.False(t, hasAlert)
}

func TestReadConversation_UnknownPatient(t *testing.T) {
	gw, _ := newTestGateway(t)
	token := seedProfessional(t, gw)
	handler := gw.buildHandler()

	rec := doJSON(t, handler, http.MethodGet, "/api/patients/missing-id/messages", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProfessionalReply(t *testing.T) {
	gw, graph := newTestGateway(t)
	token := seedProfessional(t, gw)
	handler := gw.buildHandler()
	ctx := context.Background()

	patient, err := gw.store.FindOrCreatePatient(ctx, "5511999990000")
	require.NoError(t, err)

	t.Run("delivered and persisted", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/patients/"+patient.ID+"/messages", token,
			ReplyRequest{Text: "Como você está hoje?"})
		require.Equal(t, http.StatusCreated, rec.Code)

		var msg MessageResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&msg))
		assert.Equal(t, store.SenderProfessional, msg.Sender)
		assert.Equal(t, []string{"5511999990000"}, graph.sentTo())
	})

	t.Run("delivery failure is 502 and nothing persisted", func(t *testing.T) {
		graph.setFail(true)
		defer graph.setFail(false)

		before, err := gw.store.ListMessages(ctx, patient.ID)
		require.NoError(t, err)

		rec := doJSON(t, handler, http.MethodPost, "/api/patients/"+patient.ID+"/messages", token,
			ReplyRequest{Text: "não deve chegar"})
		assert.Equal(t, http.StatusBadGateway, rec.Code)

		after, err := gw.store.ListMessages(ctx, patient.ID)
		require.NoError(t, err)
		assert.Len(t, after, len(before))
	})

	t.Run("empty text rejected", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/patients/"+patient.ID+"/messages", token,
			ReplyRequest{Text: "   "})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown patient", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/patients/missing-id/messages", token,
			ReplyRequest{Text: "Olá"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestControlHandoffEndpoints(t *testing.T) {
	gw, _ := newTestGateway(t)
	token := seedProfessional(t, gw)
	handler := gw.buildHandler()
	ctx := context.Background()

	patient, err := gw.store.FindOrCreatePatient(ctx, "5511999990000")
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodPost, "/api/patients/"+patient.ID+"/assume-control", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := gw.store.GetPatient(ctx, patient.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ControlModeManual, got.ControlMode)

	rec = doJSON(t, handler, http.MethodPost, "/api/patients/"+patient.ID+"/release-control", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err = gw.store.GetPatient(ctx, patient.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ControlModeAutomatic, got.ControlMode)

	rec = doJSON(t, handler, http.MethodPost, "/api/patients/missing-id/assume-control", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSummarize_AIDisabled(t *testing.T) {
	gw, _ := newTestGateway(t)
	token := seedProfessional(t, gw)
	handler := gw.buildHandler()
	ctx := context.Background()

	patient, err := gw.store.FindOrCreatePatient(ctx, "5511999990000")
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodPost, "/api/patients/"+patient.ID+"/summarize", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPatientRoutes_UnknownAction(t *testing.T) {
	gw, _ := newTestGateway(t)
	token := seedProfessional(t, gw)
	handler := gw.buildHandler()

	rec := doJSON(t, handler, http.MethodGet, "/api/patients/some-id/unknown", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, handler, http.MethodDelete, "/api/patients/some-id/messages", token, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStream_RelaysPersistedMessages(t *testing.T) {
	gw, _ := newTestGateway(t)
	token := seedProfessional(t, gw)
	ctx := context.Background()

	patient, err := gw.store.FindOrCreatePatient(ctx, "5511999990000")
	require.NoError(t, err)

	srv := httptest.NewServer(gw.buildHandler())
	defer srv.Close()

	reqCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, srv.URL+"/api/patients/"+patient.ID+"/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := sseLines(resp.Body)

	// First event announces the subscription
	event, data := readSSEEvent(t, lines)
	assert.Equal(t, "connected", event)
	assert.Contains(t, data, patient.ID)

	// Wait for the viewer registration before broadcasting
	require.Eventually(t, func() bool {
		return gw.service.Registry().ViewerCount(patient.ID) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, gw.service.Ingest(ctx, "5511999990000", "Tomei o remédio"))

	event, data = readSSEEvent(t, lines)
	assert.Equal(t, "message", event)

	var msg MessageResponse
	require.NoError(t, json.Unmarshal([]byte(data), &msg))
	assert.Equal(t, "Tomei o remédio", msg.Text)
	assert.Equal(t, store.SenderPatient, msg.Sender)
}

// sseLines pumps stream lines into a channel so reads can be bounded by
// a deadline. The goroutine exits when the response body is closed.
func sseLines(body io.Reader) <-chan string {
	lines := make(chan string, 64)
	reader := bufio.NewReader(body)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			lines <- strings.TrimRight(line, "\n")
		}
	}()
	return lines
}

// readSSEEvent reads one "event:"/"data:" pair from an SSE line stream.
func readSSEEvent(t *testing.T, lines <-chan string) (event, data string) {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out reading SSE event")
		case line, ok := <-lines:
			if !ok {
				t.Fatal("SSE stream closed early")
			}
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && event != "":
				return event, data
			}
		}
	}
}
