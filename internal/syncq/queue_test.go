package syncq

import (
	"os"
	"path/filepath"
	"testing"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoadMissingQueueIsEmpty(t *testing.T) {
	isolateHome(t)
	queue, err := Load("guild")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(queue) != 0 {
		t.Fatalf("expected empty queue, got %d", len(queue))
	}
}

func TestPushLoadRoundTrip(t *testing.T) {
	isolateHome(t)
	cmd := Command{
		Method:         "POST",
		Path:           "/v1/guild/orders",
		Body:           map[string]any{"user": "alice", "ticker": "JFP", "side": "buy", "quantity": float64(3)},
		IdempotencyKey: "k1",
	}
	if err := Push("guild", cmd); err != nil {
		t.Fatalf("push: %v", err)
	}

	queue, err := Load("guild")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(queue) != 1 {
		t.Fatalf("queue length: %d", len(queue))
	}
	got := queue[0]
	if got.Path != cmd.Path || got.IdempotencyKey != "k1" {
		t.Fatalf("command mangled: %+v", got)
	}
	if got.QueuedAt.IsZero() {
		t.Fatal("push did not stamp QueuedAt")
	}
}

func TestQueuesAreTenantScoped(t *testing.T) {
	isolateHome(t)
	if err := Push("alpha", Command{Method: "POST", Path: "/v1/alpha/orders", IdempotencyKey: "a"}); err != nil {
		t.Fatalf("push alpha: %v", err)
	}
	if err := Push("beta", Command{Method: "POST", Path: "/v1/beta/orders", IdempotencyKey: "b"}); err != nil {
		t.Fatalf("push beta: %v", err)
	}

	alpha, err := Load("alpha")
	if err != nil {
		t.Fatalf("load alpha: %v", err)
	}
	beta, err := Load("beta")
	if err != nil {
		t.Fatalf("load beta: %v", err)
	}
	if len(alpha) != 1 || len(beta) != 1 {
		t.Fatalf("queues bled across tenants: alpha=%d beta=%d", len(alpha), len(beta))
	}
	if alpha[0].IdempotencyKey != "a" || beta[0].IdempotencyKey != "b" {
		t.Fatalf("wrong commands per tenant: %+v / %+v", alpha[0], beta[0])
	}
}

func TestSaveEmptyRemovesFile(t *testing.T) {
	home := isolateHome(t)
	if err := Push("guild", Command{Method: "POST", Path: "/v1/guild/orders", IdempotencyKey: "k"}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := Save("guild", nil); err != nil {
		t.Fatalf("save empty: %v", err)
	}
	path := filepath.Join(home, ".toilexctl", "queue-guild.json")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("drained queue file still exists: %v", err)
	}
}

func TestTenantNameCannotEscapeQueueDir(t *testing.T) {
	home := isolateHome(t)
	if err := Push("../evil", Command{Method: "POST", Path: "/v1/x", IdempotencyKey: "k"}); err != nil {
		t.Fatalf("push: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(home, ".toilexctl"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one queue file, got %d", len(entries))
	}
	if _, err := os.Stat(filepath.Join(home, "evil")); !os.IsNotExist(err) {
		t.Fatal("tenant name escaped the queue directory")
	}
}
