//go:build unix

package activation

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestDetachSetsProcessGroup(t *testing.T) {
	t.Parallel()

	cmd := exec.Command("true")
	detach(cmd)
	if cmd.SysProcAttr == nil || !cmd.SysProcAttr.Setpgid {
		t.Fatalf("expected Setpgid, got %+v", cmd.SysProcAttr)
	}
}

func TestExecLauncherStartsHostInOwnProcessGroup(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "pid")
	script := filepath.Join(t.TempDir(), "host.sh")
	contents := "#!/bin/sh\necho $$ > \"" + out + ".tmp\" && mv \"" + out + ".tmp\" \"" + out + "\"\nexec sleep 5\n"
	if err := os.WriteFile(script, []byte(contents), 0o700); err != nil {
		t.Fatalf("write script: %v", err)
	}

	if err := (ExecLauncher{Command: script}).Activate(context.Background(), "relaymic://dictate?session=S1"); err != nil {
		t.Fatalf("activate: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	var raw []byte
	for {
		data, err := os.ReadFile(out)
		if err == nil {
			raw = data
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("host script never ran: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		t.Fatalf("parse pid %q: %v", raw, err)
	}
	defer syscall.Kill(pid, syscall.SIGKILL)

	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		t.Fatalf("getpgid: %v", err)
	}
	if pgid != pid || pgid == syscall.Getpgrp() {
		t.Fatalf("host should lead its own process group, got pgid %d for pid %d", pgid, pid)
	}
}
