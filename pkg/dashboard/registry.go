package dashboard

import (
	"sort"
	"sync"
	"time"
)

const idleAfter = 5 * time.Minute

// viewers is the set of open websocket connections.
type viewers struct {
	mu   sync.RWMutex
	byID map[string]*Client
}

func newViewers() *viewers {
	return &viewers{byID: make(map[string]*Client)}
}

func (v *viewers) add(c *Client) {
	v.mu.Lock()
	v.byID[c.ID] = c
	v.mu.Unlock()
}

func (v *viewers) remove(id string) {
	v.mu.Lock()
	delete(v.byID, id)
	v.mu.Unlock()
}

func (v *viewers) len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.byID)
}

// snapshot copies the current connections so callers can write without the lock
func (v *viewers) snapshot() []*Client {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]*Client, 0, len(v.byID))
	for _, c := range v.byID {
		out = append(out, c)
	}
	return out
}

func (v *viewers) touch(id string, at time.Time) {
	v.mu.Lock()
	if c, ok := v.byID[id]; ok {
		c.LastActivity = at
	}
	v.mu.Unlock()
}

// infos lists the connections, oldest first.
func (v *viewers) infos(now time.Time) []ClientInfo {
	v.mu.RLock()
	out := make([]ClientInfo, 0, len(v.byID))
	for _, c := range v.byID {
		out = append(out, ClientInfo{
			ID:           c.ID,
			ConnectedAt:  c.ConnectedAt,
			LastActivity: c.LastActivity,
			IPAddress:    c.IPAddress,
			Idle:         now.Sub(c.LastActivity) > idleAfter,
		})
	}
	v.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}
