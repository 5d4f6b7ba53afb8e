package audio

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Volume bounds.
const (
	// MaxVolume is full scale in percent
	MaxVolume = 100
	// MaxAbsoluteVolume is full scale on the AVRCP absolute volume scale
	MaxAbsoluteVolume = 127
)

// ClampVolume limits percent to 0..MaxVolume.
func ClampVolume(percent int) int {
	return max(0, min(percent, MaxVolume))
}

// PercentToAbsolute converts percent to AVRCP absolute volume.
func PercentToAbsolute(percent int) uint8 {
	return uint8(ClampVolume(percent) * MaxAbsoluteVolume / MaxVolume)
}

// AbsoluteToPercent converts AVRCP absolute volume to percent.
func AbsoluteToPercent(abs uint8) int {
	return ClampVolume(int(min(abs, MaxAbsoluteVolume)) * MaxVolume / MaxAbsoluteVolume)
}

// VolumeStage applies a linear gain to decoded PCM with clipping.
// 100 percent leaves samples unchanged and 0 silences them.
type VolumeStage struct {
	mu      sync.RWMutex
	percent int
}

// NewVolumeStage creates a stage at percent, clamped.
func NewVolumeStage(percent int) *VolumeStage {
	return &VolumeStage{percent: ClampVolume(percent)}
}

// SetVolume sets the level and returns the clamped value actually applied.
func (v *VolumeStage) SetVolume(percent int) int {
	clamped := ClampVolume(percent)
	v.mu.Lock()
	v.percent = clamped
	v.mu.Unlock()

	if clamped != percent {
		logrus.WithFields(logrus.Fields{
			"function":  "VolumeStage.SetVolume",
			"requested": percent,
			"applied":   clamped,
		}).Warn("Volume clamped")
	}
	return clamped
}

// Volume returns the level in percent.
func (v *VolumeStage) Volume() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.percent
}

// SetAbsoluteVolume sets the level from an AVRCP absolute volume and returns
// the resulting percent.
func (v *VolumeStage) SetAbsoluteVolume(abs uint8) int {
	return v.SetVolume(AbsoluteToPercent(abs))
}

// AbsoluteVolume returns the level on the AVRCP scale.
func (v *VolumeStage) AbsoluteVolume() uint8 {
	return PercentToAbsolute(v.Volume())
}

// Process scales pcm in place and returns it along with the number of
// samples that clipped.
func (v *VolumeStage) Process(pcm []byte) ([]byte, int) {
	percent := v.Volume()
	if percent == MaxVolume {
		return pcm, 0
	}

	gain := float64(percent) / MaxVolume
	clipped := 0
	for i := 0; i+1 < len(pcm); i += BytesPerSample {
		s := float64(getSample(pcm[i:])) * gain
		switch {
		case s > 32767:
			putSample(pcm[i:], 32767)
			clipped++
		case s < -32768:
			putSample(pcm[i:], -32768)
			clipped++
		default:
			putSample(pcm[i:], int16(s))
		}
	}
	return pcm, clipped
}
