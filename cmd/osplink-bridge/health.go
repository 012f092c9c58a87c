package main

import (
	"context"
	"encoding/json"
	"time"
)

type HealthStatus struct {
	Status   string `json:"status"` // "online", "offline" or "unknown"
	LastSeen string `json:"lastSeen,omitempty"`
	Error    string `json:"error,omitempty"`
}

// checkHealth asks the board for its version. It returns the new health and
// whether it differs from the previous check.
func (b *Bridge) checkHealth() (HealthStatus, bool) {
	b.mu.Lock()
	_, err := b.exchange(func() (interface{}, error) { return b.client.VersionInfo() })
	b.mu.Unlock()

	now := b.now()
	prev := b.health.Status
	if err == nil {
		b.lastSeen = now
		b.health = HealthStatus{Status: "online"}
	} else {
		b.health = HealthStatus{Status: "offline", Error: err.Error()}
	}
	if !b.lastSeen.IsZero() {
		b.health.LastSeen = b.lastSeen.Format(time.RFC3339)
	}

	if b.health.Status != prev {
		b.log.Info().Str("from", prev).Str("to", b.health.Status).Msg("board health changed")
		return b.health, true
	}
	return b.health, false
}

// monitorHealth checks the board every interval and calls publish with the
// encoded health whenever it changes, until ctx is done.
func (b *Bridge) monitorHealth(ctx context.Context, interval time.Duration, publish func(topic string, body []byte)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	b.log.Info().Dur("interval", interval).Msg("Started health monitoring")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h, changed := b.checkHealth()
			if !changed {
				continue
			}
			body, err := json.Marshal(h)
			if err != nil {
				continue
			}
			publish(b.topic+"/health", body)
		}
	}
}
