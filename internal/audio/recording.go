package audio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"relaymic/internal/domain"
	"relaymic/internal/ports"
)

// SilenceFloorDB is reported for digital silence.
const SilenceFloorDB = -160.0

// recordingSink receives little-endian s16 PCM, tracks the level of the most
// recent chunk and encodes everything into a WAV file.
type recordingSink struct {
	mu sync.Mutex

	file       *os.File
	encoder    *wav.Encoder
	format     *goaudio.Format
	sampleRate int
	channels   int

	carry    []byte
	samples  int64
	level    float64
	hasLevel bool
	writeErr error
	closed   bool
}

func newRecordingSink(dir string, sampleRate, channels int) (*recordingSink, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}
	file, err := os.CreateTemp(dir, "relaymic-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create recording file: %w", err)
	}
	return &recordingSink{
		file:       file,
		encoder:    wav.NewEncoder(file, sampleRate, 16, channels, 1),
		format:     &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

func (s *recordingSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, os.ErrClosed
	}

	data := p
	if len(s.carry) > 0 {
		data = append(s.carry, p...)
		s.carry = nil
	}
	whole := len(data) &^ 1
	if whole < len(data) {
		s.carry = []byte{data[whole]}
	}
	if whole == 0 {
		return len(p), nil
	}

	samples := make([]int, whole/2)
	for i := range samples {
		samples[i] = int(int16(uint16(data[2*i]) | uint16(data[2*i+1])<<8))
	}
	s.level = levelDBFS(samples)
	s.hasLevel = true
	s.samples += int64(len(samples))

	if s.writeErr == nil {
		s.writeErr = s.encoder.Write(&goaudio.IntBuffer{Format: s.format, Data: samples, SourceBitDepth: 16})
	}
	return len(p), nil
}

func (s *recordingSink) Level() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level, s.hasLevel
}

// Finish closes the WAV file. A recording with no samples is removed and
// reported as domain.ErrCaptureProduce.
func (s *recordingSink) Finish() (ports.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ports.Recording{}, errors.New("recording already finished")
	}
	s.closed = true

	path := s.file.Name()
	closeErr := errors.Join(s.encoder.Close(), s.file.Close())
	if s.samples == 0 {
		_ = os.Remove(path)
		return ports.Recording{}, domain.ErrCaptureProduce
	}
	if err := errors.Join(s.writeErr, closeErr); err != nil {
		_ = os.Remove(path)
		return ports.Recording{}, fmt.Errorf("%w: write recording: %v", domain.ErrCaptureProduce, err)
	}

	frames := s.samples / int64(s.channels)
	return ports.Recording{
		Path:       path,
		Duration:   time.Duration(frames) * time.Second / time.Duration(s.sampleRate),
		SampleRate: s.sampleRate,
		Channels:   s.channels,
	}, nil
}

// Discard closes and removes the file without producing a recording.
func (s *recordingSink) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	_ = s.encoder.Close()
	_ = s.file.Close()
	_ = os.Remove(s.file.Name())
}

// levelDBFS returns the RMS level of 16-bit samples relative to full scale.
func levelDBFS(samples []int) float64 {
	if len(samples) == 0 {
		return SilenceFloorDB
	}
	var sum float64
	for _, sample := range samples {
		v := float64(sample) / 32768
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms == 0 {
		return SilenceFloorDB
	}
	return math.Max(20*math.Log10(rms), SilenceFloorDB)
}

// ReadRecording loads the PCM payload of a recording written by this package.
func ReadRecording(rec ports.Recording) ([]byte, error) {
	f, err := os.Open(rec.Path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("recording %s is not a valid wav file", rec.Path)
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode recording: %w", err)
	}
	out := make([]byte, 0, len(buf.Data)*2)
	for _, sample := range buf.Data {
		v := uint16(int16(sample))
		out = append(out, byte(v), byte(v>>8))
	}
	return out, nil
}

// Remove deletes a recording's file.
func Remove(rec ports.Recording) {
	if rec.Path != "" {
		_ = os.Remove(rec.Path)
	}
}
