package audio

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"relaymic/internal/domain"
	"relaymic/internal/ports"
)

func TestFFMPEGCaptureRecordsToWAV(t *testing.T) {
	t.Parallel()

	// 1600 frames of the constant sample 0x2020 at 16 kHz mono.
	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nhead -c 3200 /dev/zero | tr '\\000' '\\040'\nsleep 2\n")
	capture := NewFFMPEGCapture(script, 0)

	dir := t.TempDir()
	session, err := capture.Start(context.Background(), ports.AudioConfig{Dir: dir})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := session.Level(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no level reported")
		}
		time.Sleep(10 * time.Millisecond)
	}

	recording, err := session.Stop()
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	defer Remove(recording)

	if filepath.Dir(recording.Path) != dir {
		t.Fatalf("recording written outside dir: %s", recording.Path)
	}
	if recording.SampleRate != 16000 || recording.Channels != 1 {
		t.Fatalf("unexpected format: %+v", recording)
	}
	pcm, err := ReadRecording(recording)
	if err != nil {
		t.Fatalf("read recording: %v", err)
	}
	if len(pcm) != 3200 {
		t.Fatalf("expected 3200 pcm bytes, got %d", len(pcm))
	}
}

func TestFFMPEGCaptureKeepsAudioFlushedOnStop(t *testing.T) {
	t.Parallel()

	// Emits 32000 bytes while recording, then 262144 more on SIGINT before
	// exiting, as ffmpeg does when it drains its buffers.
	script := writeScript(t, "flush.sh", `#!/usr/bin/env bash
trap 'head -c 262144 /dev/zero | tr "\000" "\040"; exit 0' INT
head -c 32000 /dev/zero | tr '\000' '\040'
while true; do sleep 0.05; done
`)
	capture := NewFFMPEGCapture(script, 0)

	for run := 0; run < 5; run++ {
		session, err := capture.Start(context.Background(), ports.AudioConfig{Dir: t.TempDir()})
		if err != nil {
			t.Fatalf("run %d: start failed: %v", run, err)
		}
		deadline := time.Now().Add(2 * time.Second)
		for {
			if _, ok := session.Level(); ok {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("run %d: no level reported", run)
			}
			time.Sleep(10 * time.Millisecond)
		}

		recording, err := session.Stop()
		if err != nil {
			t.Fatalf("run %d: stop failed: %v", run, err)
		}
		pcm, err := ReadRecording(recording)
		Remove(recording)
		if err != nil {
			t.Fatalf("run %d: read recording: %v", run, err)
		}
		if len(pcm) != 32000+262144 {
			t.Fatalf("run %d: expected %d pcm bytes, got %d", run, 32000+262144, len(pcm))
		}
	}
}

func TestFFMPEGCaptureNoAudioIsProduceError(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "quiet.sh", "#!/usr/bin/env bash\nsleep 2\n")
	capture := NewFFMPEGCapture(script, 0)

	session, err := capture.Start(context.Background(), ports.AudioConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := session.Stop(); !errors.Is(err, domain.ErrCaptureProduce) {
		t.Fatalf("expected produce error, got %v", err)
	}
}

func TestFFMPEGCaptureStartEarlyExit(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'boom' 1>&2\nexit 1\n")
	capture := NewFFMPEGCapture(script, 0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	dir := t.TempDir()
	_, err := capture.Start(ctx, ports.AudioConfig{Dir: dir})
	if !errors.Is(err, domain.ErrCaptureStart) {
		t.Fatalf("expected capture start error, got %v", err)
	}
	if !strings.Contains(err.Error(), "exited before capture started") {
		t.Fatalf("unexpected error: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected recording file to be removed, found %d entries", len(entries))
	}
}

func TestNormalizeStopErrExitErrorIsIgnored(t *testing.T) {
	t.Parallel()

	err := exec.Command("bash", "-c", "exit 1").Run()
	if err == nil {
		t.Fatalf("expected command to fail")
	}
	if got := normalizeStopErr(err); got != nil {
		t.Fatalf("expected nil for exit error, got %v", got)
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}
