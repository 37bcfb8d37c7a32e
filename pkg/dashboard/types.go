package dashboard

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/agentforge/pkg/events"
)

const writeWait = 5 * time.Second

// EventMessage is one frame of the /ws stream
type EventMessage struct {
	Type         string                 `json:"type"`
	Seq          int64                  `json:"seq"`
	Kind         string                 `json:"kind"`
	Timestamp    time.Time              `json:"timestamp"`
	RunSeq       int64                  `json:"run_seq,omitempty"`
	StepID       string                 `json:"step_id,omitempty"`
	Agent        string                 `json:"agent,omitempty"`
	Data         map[string]interface{} `json:"data,omitempty"`
	InputTokens  int                    `json:"input_tokens,omitempty"`
	OutputTokens int                    `json:"output_tokens,omitempty"`
	Cost         float64                `json:"cost,omitempty"`
	DurationMs   float64                `json:"duration_ms,omitempty"`
}

func messageFromEvent(e events.Event) EventMessage {
	return EventMessage{
		Type:         "event",
		Kind:         string(e.Kind),
		Timestamp:    e.Timestamp,
		RunSeq:       e.Seq,
		StepID:       e.StepID,
		Agent:        e.AgentName,
		Data:         e.Data,
		InputTokens:  e.InputTokens,
		OutputTokens: e.OutputTokens,
		Cost:         e.Cost,
		DurationMs:   e.DurationMs,
	}
}

// ClientInfo describes a connected websocket client
type ClientInfo struct {
	ID           string    `json:"id"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
	IPAddress    string    `json:"ip_address"`
	Idle         bool      `json:"idle"`
}

// Client is a connected websocket client
type Client struct {
	ID           string
	Conn         *websocket.Conn
	ConnectedAt  time.Time
	LastActivity time.Time
	IPAddress    string

	writeMu sync.Mutex
}

// WriteJSON sends v to the client. Safe for concurrent use.
func (c *Client) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.Conn.WriteJSON(v)
}

// ApprovalBody is the payload of POST /api/approvals/{step}
type ApprovalBody struct {
	Approved     bool   `json:"approved"`
	EditedOutput string `json:"edited_output,omitempty"`
	Reason       string `json:"reason,omitempty"`
}
