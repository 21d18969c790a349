package capture

import (
	"fmt"

	"github.com/gen2brain/malgo"
)

// DeviceInfo device information
type DeviceInfo struct {
	ID      malgo.DeviceID
	Name    string
	Formats []malgo.DataFormat
	Error   string
}

// ListCaptureDevices lists all capture devices
func ListCaptureDevices(ctx *malgo.AllocatedContext) ([]DeviceInfo, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is nil")
	}

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to get capture device list: %w", err)
	}

	result := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		deviceInfo := DeviceInfo{
			ID:   info.ID,
			Name: info.Name(),
		}
		full, err := ctx.DeviceInfo(malgo.Capture, info.ID, malgo.Shared)
		if err != nil {
			deviceInfo.Error = err.Error()
		} else {
			deviceInfo.Formats = full.Formats
		}
		result = append(result, deviceInfo)
	}
	return result, nil
}

// CaptureDevices opens a temporary audio context and lists capture devices.
func CaptureDevices() ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	defer freeContext(ctx)
	return ListCaptureDevices(ctx)
}
