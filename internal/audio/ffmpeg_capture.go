package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"relaymic/internal/domain"
	"relaymic/internal/ports"
)

// FFMPEGCapture records the microphone by running ffmpeg and reading raw PCM
// from its stdout.
type FFMPEGCapture struct {
	command   string
	chunkSize int
}

func NewFFMPEGCapture(command string, chunkSize int) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	if chunkSize < 256 {
		chunkSize = 3200
	}
	return &FFMPEGCapture{command: command, chunkSize: chunkSize}
}

func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cfg = withAudioDefaults(cfg)

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}

	sink, err := newRecordingSink(cfg.Dir, cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCaptureStart, err)
	}

	cmd := exec.CommandContext(ctx, c.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		sink.Discard()
		return nil, fmt.Errorf("%w: ffmpeg stdout pipe: %v", domain.ErrCaptureStart, err)
	}
	if err := cmd.Start(); err != nil {
		sink.Discard()
		return nil, fmt.Errorf("%w: start ffmpeg: %v", domain.ErrCaptureStart, err)
	}

	session := &ffmpegSession{
		sink:     sink,
		stdout:   stdout,
		stderr:   &stderr,
		process:  cmd.Process,
		waitErr:  make(chan error, 1),
		pumpDone: make(chan struct{}),
	}
	go session.pump(c.chunkSize)
	go func() {
		// Wait closes stdout, so it must not run until the pump has read
		// everything ffmpeg flushed on exit.
		<-session.pumpDone
		session.waitErr <- cmd.Wait()
		close(session.waitErr)
	}()

	select {
	case err := <-session.waitErr:
		<-session.pumpDone
		sink.Discard()
		if err != nil {
			return nil, fmt.Errorf("%w: ffmpeg exited before capture started: %v: %s", domain.ErrCaptureStart, err, stringsTrimSpaceSafe(stderr.String()))
		}
		return nil, fmt.Errorf("%w: ffmpeg exited before capture started", domain.ErrCaptureStart)
	case <-time.After(250 * time.Millisecond):
	}

	return session, nil
}

func withAudioDefaults(cfg ports.AudioConfig) ports.AudioConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	return cfg
}

type ffmpegSession struct {
	sink   *recordingSink
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process  *os.Process
	waitErr  chan error
	pumpDone chan struct{}

	stopOnce  sync.Once
	recording ports.Recording
	stopErr   error
}

// pump copies stdout into the sink until ffmpeg closes the pipe.
func (s *ffmpegSession) pump(chunkSize int) {
	defer close(s.pumpDone)

	buf := make([]byte, chunkSize)
	for {
		n, err := s.stdout.Read(buf)
		if n > 0 {
			if _, writeErr := s.sink.Write(buf[:n]); writeErr != nil {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				slog.Warn("ffmpeg read failed", "error", err)
			}
			return
		}
	}
}

func (s *ffmpegSession) Level() (float64, bool) {
	return s.sink.Level()
}

func (s *ffmpegSession) Stop() (ports.Recording, error) {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		var procErr error
		select {
		case err, ok := <-s.waitErr:
			if ok {
				procErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.waitErr; ok {
				procErr = normalizeStopErr(err)
			}
		}

		<-s.pumpDone
		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) && procErr == nil {
			procErr = closeErr
		}
		if procErr != nil && s.stderr.Len() > 0 {
			procErr = fmt.Errorf("%w: %s", procErr, stringsTrimSpaceSafe(s.stderr.String()))
		}
		if procErr != nil {
			slog.Warn("ffmpeg did not stop cleanly", "error", procErr)
		}

		s.recording, s.stopErr = s.sink.Finish()
	})

	return s.recording, s.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
