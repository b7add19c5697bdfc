package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"relaymic/internal/domain"
	"relaymic/internal/ports"
)

// MalgoCapture records the default input device through miniaudio, without
// an external recorder binary.
type MalgoCapture struct{}

func NewMalgoCapture() *MalgoCapture {
	return &MalgoCapture{}
}

func (c *MalgoCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cfg = withAudioDefaults(cfg)

	sink, err := newRecordingSink(cfg.Dir, cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCaptureStart, err)
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		sink.Discard()
		return nil, fmt.Errorf("%w: init audio context: %v", domain.ErrCaptureStart, err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			_, _ = sink.Write(input)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		sink.Discard()
		return nil, fmt.Errorf("%w: init capture device: %v", domain.ErrCaptureStart, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		sink.Discard()
		return nil, fmt.Errorf("%w: start capture device: %v", domain.ErrCaptureStart, err)
	}

	session := &malgoSession{sink: sink, ctx: mctx, device: device}
	go func() {
		<-ctx.Done()
		session.release()
	}()
	return session, nil
}

type malgoSession struct {
	sink   *recordingSink
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	releaseOnce sync.Once
	stopOnce    sync.Once
	recording   ports.Recording
	stopErr     error
}

func (s *malgoSession) Level() (float64, bool) {
	return s.sink.Level()
}

func (s *malgoSession) Stop() (ports.Recording, error) {
	s.stopOnce.Do(func() {
		s.release()
		s.recording, s.stopErr = s.sink.Finish()
	})
	return s.recording, s.stopErr
}

func (s *malgoSession) release() {
	s.releaseOnce.Do(func() {
		_ = s.device.Stop()
		s.device.Uninit()
		_ = s.ctx.Uninit()
		s.ctx.Free()
	})
}
