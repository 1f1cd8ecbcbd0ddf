//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	pconfig "github.com/ukisoft/ownplate/internal/platform/config"
	pfirestore "github.com/ukisoft/ownplate/internal/platform/firestore"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

type counterDoc struct {
	MenuID string `firestore:"menuId"`
	Count  int64  `firestore:"count"`
}

func TestProviderTransactionsIntegration(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	defer stopContainer(containerID)

	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    "test-project",
		EmulatorHost: endpoint,
	})
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	const path = "restaurants/r1/menus/curry/orderTotal/20240302"
	ref, err := provider.Doc(ctx, path)
	if err != nil {
		t.Fatalf("doc ref: %v", err)
	}
	if _, err := ref.Set(ctx, counterDoc{MenuID: "curry", Count: 1}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	got, err := pfirestore.Get(ctx, provider, path, pfirestore.StructDecoder[counterDoc]())
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.MenuID != "curry" || got.Count != 1 {
		t.Fatalf("unexpected data: %#v", got)
	}

	_, err = pfirestore.Get(ctx, provider, "restaurants/r1/menus/missing", pfirestore.StructDecoder[counterDoc]())
	if !pfirestore.IsNotFound(err) {
		t.Fatalf("expected not found classification, got %v", err)
	}

	if err := provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		current, found, err := pfirestore.TxGet(tx, ref, pfirestore.StructDecoder[counterDoc]())
		if err != nil {
			return err
		}
		if !found {
			return errors.New("seeded counter missing")
		}
		current.Count += 2
		return tx.Set(ref, current)
	}); err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	got, err = pfirestore.Get(ctx, provider, path, pfirestore.StructDecoder[counterDoc]())
	if err != nil {
		t.Fatalf("get after transaction failed: %v", err)
	}
	if got.Count != 3 {
		t.Fatalf("expected count=3 after txn, got %d", got.Count)
	}

	missing, err := provider.Doc(ctx, "restaurants/r1/menus/curry/orderTotal/20240303")
	if err != nil {
		t.Fatalf("doc ref: %v", err)
	}
	if err := provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, found, err := pfirestore.TxGet(tx, missing, pfirestore.StructDecoder[counterDoc]())
		if err != nil {
			return err
		}
		if found {
			return errors.New("expected missing counter")
		}
		return nil
	}); err != nil {
		t.Fatalf("missing read failed: %v", err)
	}

	sentinel := errors.New("abort")
	if err := provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return sentinel
	}); !errors.Is(err, sentinel) {
		t.Fatalf("expected body error to surface unchanged, got %v", err)
	}

	cancelCtx, cancelTxn := context.WithCancel(context.Background())
	cancelTxn()
	if err := provider.RunTransaction(cancelCtx, func(ctx context.Context, tx *firestore.Transaction) error {
		return nil
	}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled error, got %v", err)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		lastErr = err
		time.Sleep(250 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = errors.New("timeout waiting for endpoint")
	}
	t.Fatalf("emulator did not become ready: %v", lastErr)
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}
}
