package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/agentforge/pkg/control"
	"github.com/harun/agentforge/pkg/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	cfg.Logger = zerolog.Nop()
	s, err := NewServer(cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var hello map[string]interface{}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, "hello", hello["type"])
	require.NotEmpty(t, hello["client_id"])
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) EventMessage {
	t.Helper()
	var msg EventMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(Config{Port: -1})
	assert.Error(t, err)

	s, err := NewServer(Config{Port: 0})
	require.NoError(t, err)
	assert.Empty(t, s.Addr())
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t, Config{Token: "secret"})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestMetrics(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "agentforge_")
}

func TestToken(t *testing.T) {
	_, ts := newTestServer(t, Config{Token: "secret"})

	t.Run("should reject requests without the token", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/approvals")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("should accept a bearer token", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/approvals", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer secret")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("should accept the token as a query parameter on /ws", func(t *testing.T) {
		dial(t, ts, "?token=secret")
	})
}

func TestEventStream(t *testing.T) {
	t.Run("should stream published events in order", func(t *testing.T) {
		s, ts := newTestServer(t, Config{})
		conn := dial(t, ts, "")

		publish := s.Subscriber()
		publish(events.Event{Seq: 1, Kind: events.KindStepStart, StepID: "research", AgentName: "researcher", Timestamp: time.Now()})
		publish(events.Event{Seq: 2, Kind: events.KindStepEnd, StepID: "research", Cost: 0.25})

		first := readMessage(t, conn)
		second := readMessage(t, conn)

		assert.Equal(t, "event", first.Type)
		assert.Equal(t, "step_start", first.Kind)
		assert.Equal(t, "research", first.StepID)
		assert.Equal(t, "researcher", first.Agent)
		assert.Equal(t, int64(1), first.RunSeq)
		assert.Equal(t, "step_end", second.Kind)
		assert.Equal(t, 0.25, second.Cost)
		assert.Greater(t, second.Seq, first.Seq)
	})

	t.Run("should replay history to late clients", func(t *testing.T) {
		s, ts := newTestServer(t, Config{HistorySize: 2})

		publish := s.Subscriber()
		publish(events.Event{Kind: events.KindWorkflowStart})
		publish(events.Event{Kind: events.KindStepStart})
		publish(events.Event{Kind: events.KindStepEnd})

		conn := dial(t, ts, "")
		assert.Equal(t, "step_start", readMessage(t, conn).Kind)
		assert.Equal(t, "step_end", readMessage(t, conn).Kind)

		history := s.Broadcaster().History()
		require.Len(t, history, 2)
		assert.Equal(t, int64(3), history[1].Seq)
	})

	t.Run("should list connected clients", func(t *testing.T) {
		_, ts := newTestServer(t, Config{})
		dial(t, ts, "")

		resp, err := http.Get(ts.URL + "/api/clients")
		require.NoError(t, err)
		defer resp.Body.Close()

		var infos []ClientInfo
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&infos))
		assert.Len(t, infos, 1)
	})
}

func TestApprovals(t *testing.T) {
	t.Run("should resolve a pending approval", func(t *testing.T) {
		approver := control.NewDeferredApprover()
		_, ts := newTestServer(t, Config{Approver: approver})
		conn := dial(t, ts, "")

		decisions := make(chan control.ApprovalDecision, 1)
		go func() {
			d, _ := approver.RequestApproval(context.Background(), control.ApprovalRequest{
				StepID: "write", AgentName: "writer", Output: "draft",
			})
			decisions <- d
		}()

		pending := readMessage(t, conn)
		assert.Equal(t, "approval_pending", pending.Kind)
		assert.Equal(t, "write", pending.Data["step_id"])

		resp, err := http.Get(ts.URL + "/api/approvals")
		require.NoError(t, err)
		var list []control.PendingApproval
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
		resp.Body.Close()
		require.Len(t, list, 1)
		assert.Equal(t, "write", list[0].Request.StepID)

		body, _ := json.Marshal(ApprovalBody{Approved: true, EditedOutput: "better draft"})
		resp, err = http.Post(ts.URL+"/api/approvals/write", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		select {
		case d := <-decisions:
			assert.True(t, d.Approved)
			assert.Equal(t, "better draft", d.EditedOutput)
		case <-time.After(2 * time.Second):
			t.Fatal("approval was not delivered")
		}

		resolved := readMessage(t, conn)
		assert.Equal(t, "approval_resolved", resolved.Kind)
		assert.Empty(t, approver.Pending())
	})

	t.Run("should return 404 for an unknown step", func(t *testing.T) {
		_, ts := newTestServer(t, Config{Approver: control.NewDeferredApprover()})

		resp, err := http.Post(ts.URL+"/api/approvals/ghost", "application/json", strings.NewReader(`{"approved": true}`))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("should reject a malformed body", func(t *testing.T) {
		_, ts := newTestServer(t, Config{Approver: control.NewDeferredApprover()})

		resp, err := http.Post(ts.URL+"/api/approvals/write", "application/json", strings.NewReader(`{`))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("should report approvals as disabled without an approver", func(t *testing.T) {
		_, ts := newTestServer(t, Config{})

		resp, err := http.Post(ts.URL+"/api/approvals/write", "application/json", strings.NewReader(`{}`))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestStartStop(t *testing.T) {
	s, err := NewServer(Config{Host: "127.0.0.1", Port: 0, Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, s.Start())
	require.NotEmpty(t, s.Addr())

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
