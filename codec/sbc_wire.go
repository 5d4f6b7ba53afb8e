package codec

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// AVDTP channel mode flags as reported by the Bluetooth stack.
const (
	WireChannelModeJointStereo uint8 = 0x01
	WireChannelModeStereo      uint8 = 0x02
	WireChannelModeDualChannel uint8 = 0x04
	WireChannelModeMono        uint8 = 0x08
)

// AVDTP allocation method flags as reported by the Bluetooth stack.
const (
	WireAllocationLoudness uint8 = 0x01
	WireAllocationSNR      uint8 = 0x02
)

// Sampling frequency flags in the high nibble of the first element byte.
const (
	wireFreq48000 uint8 = 0x01
	wireFreq44100 uint8 = 0x02
	wireFreq32000 uint8 = 0x04
	wireFreq16000 uint8 = 0x08
)

// CodecInfoSize is the length of the SBC codec information element.
const CodecInfoSize = 4

// DefaultSBCCapabilities advertises every sampling frequency, channel mode,
// block length, subband count and allocation method with bitpool 2..53.
var DefaultSBCCapabilities = [CodecInfoSize]byte{0xFF, 0xFF, 2, 53}

// WireSBCConfig is an SBC configuration as the Bluetooth stack reports it:
// values decoded from the codec information element but still using AVDTP
// enumerations.
type WireSBCConfig struct {
	Reconfigure       bool
	NumChannels       uint8
	SamplingFrequency uint16
	BlockLength       uint8
	Subbands          uint8
	MinBitpool        uint8
	MaxBitpool        uint8
	ChannelMode       uint8 // WireChannelMode*
	AllocationMethod  uint8 // WireAllocation*
}

// FromWire translates a stack-reported configuration into a Configuration.
// Unknown enumeration values yield ErrUnsupportedWireValue.
func FromWire(w WireSBCConfig) (Configuration, error) {
	var cfg Configuration

	switch w.ChannelMode {
	case WireChannelModeJointStereo:
		cfg.ChannelMode = ChannelModeJointStereo
	case WireChannelModeStereo:
		cfg.ChannelMode = ChannelModeStereo
	case WireChannelModeDualChannel:
		cfg.ChannelMode = ChannelModeDualChannel
	case WireChannelModeMono:
		cfg.ChannelMode = ChannelModeMono
	default:
		return cfg, wireFault("FromWire", "channel_mode", w.ChannelMode)
	}

	// AVDTP numbers allocation methods from 1, the codec from 0.
	switch w.AllocationMethod {
	case WireAllocationLoudness, WireAllocationSNR:
		cfg.AllocationMethod = AllocationMethod(w.AllocationMethod - 1)
	default:
		return cfg, wireFault("FromWire", "allocation_method", w.AllocationMethod)
	}

	switch w.SamplingFrequency {
	case 16000, 32000, 44100, 48000:
		cfg.SampleRate = int(w.SamplingFrequency)
	default:
		return cfg, wireFault("FromWire", "sampling_frequency", w.SamplingFrequency)
	}

	cfg.Channels = int(w.NumChannels)
	cfg.BlockLength = int(w.BlockLength)
	cfg.Subbands = int(w.Subbands)
	cfg.MinBitpool = int(w.MinBitpool)
	cfg.MaxBitpool = int(w.MaxBitpool)

	if err := cfg.Validate(); err != nil {
		return Configuration{}, err
	}

	logrus.WithFields(cfg.Fields()).WithFields(logrus.Fields{
		"function":    "FromWire",
		"reconfigure": w.Reconfigure,
	}).Info("Received SBC codec configuration")

	return cfg, nil
}

// ToWire translates a Configuration back into stack enumerations.
func ToWire(cfg Configuration) (WireSBCConfig, error) {
	if err := cfg.Validate(); err != nil {
		return WireSBCConfig{}, err
	}

	w := WireSBCConfig{
		NumChannels:       uint8(cfg.Channels),
		SamplingFrequency: uint16(cfg.SampleRate),
		BlockLength:       uint8(cfg.BlockLength),
		Subbands:          uint8(cfg.Subbands),
		MinBitpool:        uint8(cfg.MinBitpool),
		MaxBitpool:        uint8(cfg.MaxBitpool),
		AllocationMethod:  uint8(cfg.AllocationMethod) + 1,
	}
	switch cfg.ChannelMode {
	case ChannelModeJointStereo:
		w.ChannelMode = WireChannelModeJointStereo
	case ChannelModeStereo:
		w.ChannelMode = WireChannelModeStereo
	case ChannelModeDualChannel:
		w.ChannelMode = WireChannelModeDualChannel
	case ChannelModeMono:
		w.ChannelMode = WireChannelModeMono
	}
	return w, nil
}

// ParseCodecInfo decodes a 4-byte SBC codec information element that selects
// exactly one option per field, as sent in a configuration request.
func ParseCodecInfo(element []byte) (WireSBCConfig, error) {
	if len(element) < CodecInfoSize {
		return WireSBCConfig{}, fmt.Errorf("%w: codec info element has %d bytes, need %d",
			ErrUnsupportedWireValue, len(element), CodecInfoSize)
	}

	var w WireSBCConfig
	switch element[0] >> 4 {
	case wireFreq16000:
		w.SamplingFrequency = 16000
	case wireFreq32000:
		w.SamplingFrequency = 32000
	case wireFreq44100:
		w.SamplingFrequency = 44100
	case wireFreq48000:
		w.SamplingFrequency = 48000
	default:
		return w, wireFault("ParseCodecInfo", "sampling_frequency_flags", element[0]>>4)
	}

	w.ChannelMode = element[0] & 0x0F
	switch w.ChannelMode {
	case WireChannelModeMono:
		w.NumChannels = 1
	case WireChannelModeDualChannel, WireChannelModeStereo, WireChannelModeJointStereo:
		w.NumChannels = 2
	default:
		return w, wireFault("ParseCodecInfo", "channel_mode_flags", w.ChannelMode)
	}

	switch element[1] >> 4 {
	case 0x08:
		w.BlockLength = 4
	case 0x04:
		w.BlockLength = 8
	case 0x02:
		w.BlockLength = 12
	case 0x01:
		w.BlockLength = 16
	default:
		return w, wireFault("ParseCodecInfo", "block_length_flags", element[1]>>4)
	}

	switch (element[1] >> 2) & 0x03 {
	case 0x02:
		w.Subbands = 4
	case 0x01:
		w.Subbands = 8
	default:
		return w, wireFault("ParseCodecInfo", "subbands_flags", (element[1]>>2)&0x03)
	}

	w.AllocationMethod = element[1] & 0x03
	if w.AllocationMethod != WireAllocationLoudness && w.AllocationMethod != WireAllocationSNR {
		return w, wireFault("ParseCodecInfo", "allocation_method_flags", w.AllocationMethod)
	}

	w.MinBitpool = element[2]
	w.MaxBitpool = element[3]
	return w, nil
}

// EncodeCodecInfo builds the 4-byte codec information element selecting cfg.
func EncodeCodecInfo(cfg Configuration) ([CodecInfoSize]byte, error) {
	var out [CodecInfoSize]byte

	w, err := ToWire(cfg)
	if err != nil {
		return out, err
	}

	var freq uint8
	switch w.SamplingFrequency {
	case 16000:
		freq = wireFreq16000
	case 32000:
		freq = wireFreq32000
	case 44100:
		freq = wireFreq44100
	case 48000:
		freq = wireFreq48000
	default:
		return out, wireFault("EncodeCodecInfo", "sampling_frequency", w.SamplingFrequency)
	}

	var blocks uint8
	switch w.BlockLength {
	case 4:
		blocks = 0x08
	case 8:
		blocks = 0x04
	case 12:
		blocks = 0x02
	case 16:
		blocks = 0x01
	}

	subbands := uint8(0x01)
	if w.Subbands == 4 {
		subbands = 0x02
	}

	out[0] = freq<<4 | w.ChannelMode
	out[1] = blocks<<4 | subbands<<2 | w.AllocationMethod
	out[2] = w.MinBitpool
	out[3] = w.MaxBitpool
	return out, nil
}

// ConfigurationFromElement decodes a configuration element received from the
// remote device and translates it into a Configuration.
//
// Parameters:
//   - element: the 4-byte codec information element selecting one option per field
//   - caps: the local capability element; empty means every option is accepted
//
// Returns:
//   - Configuration: the validated stream configuration
//   - error: ErrUnsupportedWireValue for unknown flags or options outside caps,
//     ErrInvalidConfiguration for inconsistent values
func ConfigurationFromElement(element, caps []byte) (Configuration, error) {
	w, err := ParseCodecInfo(element)
	if err != nil {
		return Configuration{}, err
	}
	if !WithinCapabilities(caps, element) {
		return Configuration{}, fmt.Errorf("%w: element % x outside capabilities % x",
			ErrUnsupportedWireValue, element[:CodecInfoSize], caps)
	}
	return FromWire(w)
}

// WithinCapabilities reports whether element selects only options that caps
// offers and a bitpool range inside the advertised one. An empty caps offers
// everything.
func WithinCapabilities(caps, element []byte) bool {
	if len(caps) == 0 {
		return true
	}
	if len(caps) < CodecInfoSize || len(element) < CodecInfoSize {
		return false
	}
	if element[0]&^caps[0] != 0 || element[1]&^caps[1] != 0 {
		return false
	}
	return element[2] <= element[3] && element[2] >= caps[2] && element[3] <= caps[3]
}

func wireFault[T uint8 | uint16](function, field string, value T) error {
	logrus.WithFields(logrus.Fields{
		"function": function,
		"field":    field,
		"value":    value,
	}).Error("Unsupported wire codec value")
	return fmt.Errorf("%w: %s=%#x", ErrUnsupportedWireValue, field, value)
}
