// Package whispercpp runs a local whisper.cpp binary on recordings.
package whispercpp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"relaymic/internal/ports"
)

type Config struct {
	// Binary is the whisper.cpp CLI; found on PATH when empty.
	Binary    string
	ModelPath string
	Threads   int
}

// Engine implements ports.SpeechEngine.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

func (e *Engine) Name() string { return "whisper.cpp" }

func (e *Engine) Transcribe(ctx context.Context, recording ports.Recording, opts ports.TranscribeOptions) (string, error) {
	binary := e.cfg.Binary
	if binary == "" {
		binary = findBinary()
	}
	if binary == "" {
		return "", errors.New("whisper.cpp binary not found, install whisper-cli or set the engine binary")
	}
	if _, err := os.Stat(e.cfg.ModelPath); err != nil {
		return "", fmt.Errorf("whisper model %q: %w", e.cfg.ModelPath, err)
	}

	cmd := exec.CommandContext(ctx, binary, buildArgs(e.cfg, recording.Path, opts.Language, opts.Vocabulary)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("whisper.cpp failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return joinLines(stdout.String()), nil
}

func buildArgs(cfg Config, audioPath, language string, vocabulary []string) []string {
	args := []string{
		"-m", cfg.ModelPath,
		"-f", audioPath,
		"-nt",
		"--no-prints",
	}
	if language = strings.TrimSpace(language); language != "" {
		args = append(args, "-l", language)
	}
	if cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(cfg.Threads))
	}
	if len(vocabulary) > 0 {
		args = append(args, "--prompt", strings.Join(vocabulary, ", "))
	}
	return args
}

func joinLines(output string) string {
	lines := strings.Split(output, "\n")
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}

func findBinary() string {
	for _, name := range []string{"whisper-cli", "whisper-cpp", "whisper"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	home, _ := os.UserHomeDir()
	for _, dir := range []string{"/opt/homebrew/bin", "/usr/local/bin", filepath.Join(home, ".local", "bin")} {
		path := filepath.Join(dir, "whisper-cli")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
