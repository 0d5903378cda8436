// Package syncq persists write commands that failed to reach the API so
// `toilexctl sync` can replay them later. Queues are kept per tenant under
// ~/.toilexctl, and every queued command carries the idempotency key of the
// original attempt, so a replay that raced a delivered-but-unacknowledged
// request is rejected by the server instead of double-applying.
package syncq

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

type Command struct {
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	Body           map[string]any `json:"body,omitempty"`
	Admin          bool           `json:"admin,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
	QueuedAt       time.Time      `json:"queued_at"`
}

func queuePath(tenant string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".toilexctl")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	// Tenant ids come from operator input; escape them so they cannot
	// name a path outside the queue directory.
	return filepath.Join(dir, "queue-"+url.PathEscape(tenant)+".json"), nil
}

// Load reads a tenant's queue. A missing or empty file is an empty queue.
func Load(tenant string) ([]Command, error) {
	path, err := queuePath(tenant)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Command{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Command{}, nil
	}
	var out []Command
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Save replaces a tenant's queue. An empty queue removes the file so stale
// tenants do not accumulate empty artifacts.
func Save(tenant string, commands []Command) error {
	path, err := queuePath(tenant)
	if err != nil {
		return err
	}
	if len(commands) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// Push appends one command to a tenant's queue, stamping it if the caller
// did not.
func Push(tenant string, cmd Command) error {
	commands, err := Load(tenant)
	if err != nil {
		return err
	}
	if cmd.QueuedAt.IsZero() {
		cmd.QueuedAt = time.Now().UTC()
	}
	commands = append(commands, cmd)
	return Save(tenant, commands)
}
