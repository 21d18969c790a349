package capture

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"
)

// AudioConfig describes the PCM stream handed to the realtime client.
type AudioConfig struct {
	// DeviceName selects a capture device by substring; empty uses the default.
	DeviceName string
	SampleRate uint32
	Channels   uint32
}

// AudioCapturer records PCM16 from a capture device.
type AudioCapturer struct {
	cfg    AudioConfig
	logger *zap.Logger

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

// NewAudioCapturer creates a capturer. Defaults are 24 kHz mono, which is
// what realtime speech APIs expect.
func NewAudioCapturer(cfg AudioConfig, logger *zap.Logger) *AudioCapturer {
	if logger == nil {
		logger = zap.L()
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 24000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	return &AudioCapturer{cfg: cfg, logger: logger}
}

// Start opens the device and calls onFrame with each PCM16 little endian
// buffer. onFrame runs on the audio thread and must not block.
func (a *AudioCapturer) Start(onFrame func(pcm []byte)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.device != nil {
		return fmt.Errorf("audio capture already started")
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		a.logger.Debug("malgo", zap.String("message", strings.TrimSpace(message)))
	})
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = a.cfg.Channels
	deviceConfig.SampleRate = a.cfg.SampleRate
	if a.cfg.DeviceName != "" {
		devices, err := ListCaptureDevices(mctx)
		if err != nil {
			freeContext(mctx)
			return err
		}
		found := false
		for _, d := range devices {
			if strings.Contains(strings.ToLower(d.Name), strings.ToLower(a.cfg.DeviceName)) {
				deviceConfig.Capture.DeviceID = d.ID.Pointer()
				found = true
				break
			}
		}
		if !found {
			freeContext(mctx)
			return fmt.Errorf("capture device %q not found", a.cfg.DeviceName)
		}
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			if len(input) == 0 {
				return
			}
			onFrame(append([]byte(nil), input...))
		},
	}
	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		freeContext(mctx)
		return fmt.Errorf("init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		freeContext(mctx)
		return fmt.Errorf("start capture device: %w", err)
	}

	a.ctx = mctx
	a.device = device
	a.logger.Info("audio capture started",
		zap.Uint32("sampleRate", a.cfg.SampleRate),
		zap.Uint32("channels", a.cfg.Channels),
	)
	return nil
}

// Stop closes the device. It is safe to call more than once.
func (a *AudioCapturer) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.device != nil {
		_ = a.device.Stop()
		a.device.Uninit()
		a.device = nil
	}
	if a.ctx != nil {
		freeContext(a.ctx)
		a.ctx = nil
	}
}

func freeContext(ctx *malgo.AllocatedContext) {
	_ = ctx.Uninit()
	ctx.Free()
}
