package docker_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nstogner/drydock/pkg/sandbox/docker"
)

func TestIntegration_DockerManager_RunCommand(t *testing.T) {
	if os.Getenv("DOCKER_INTEGRATION") == "" {
		t.Skip("Skipping Docker integration test: DOCKER_INTEGRATION not set")
	}

	mgr, err := docker.New("")
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	workDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(workDir, "hello.txt"), []byte("hi\n"), 0644); err != nil {
		t.Fatal(err)
	}

	sessionID := uuid.New().String()
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mgr.Stop(cleanupCtx, sessionID)
	}()

	// First command cold-starts the container.
	res, err := mgr.RunCommand(ctx, sessionID, workDir, "cat hello.txt")
	if err != nil {
		t.Fatalf("RunCommand failed: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("Expected exit 0, got %d (stderr: %s)", res.ExitCode, res.Stderr)
	}
	if !strings.Contains(res.Stdout, "hi") {
		t.Errorf("Expected file content in stdout, got %q", res.Stdout)
	}

	// The workspace mount is read-only; writes must fail.
	res2, err := mgr.RunCommand(ctx, sessionID, workDir, "touch scratch.txt")
	if err != nil {
		t.Fatalf("RunCommand 2 failed: %v", err)
	}
	if res2.ExitCode == 0 {
		t.Error("Expected write to read-only workspace to fail")
	}
	if _, err := os.Stat(filepath.Join(workDir, "scratch.txt")); !os.IsNotExist(err) {
		t.Error("Sandbox wrote through to the host workspace")
	}
}
