package limits

import (
	"errors"
	"testing"
)

// TestSinkBufferSizeCalculation validates the sink buffer size constant
// against its frame budget.
func TestSinkBufferSizeCalculation(t *testing.T) {
	expected := (OptimalFramesMax + AdditionalFrames) * MaxFrameSize
	if SinkBufferSize != expected {
		t.Errorf("SinkBufferSize = %d, want %d", SinkBufferSize, expected)
	}
	if SinkBufferSize < OptimalFramesMin*MaxFrameSize {
		t.Errorf("SinkBufferSize %d cannot hold OptimalFramesMin frames", SinkBufferSize)
	}
}

// TestValidateMediaPacket covers media packet length validation.
func TestValidateMediaPacket(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr error
	}{
		{"empty", 0, ErrPacketEmpty},
		{"shorter than media header", 8, ErrPacketTooShort},
		{"media header only", MediaHeaderSize, ErrPacketTooShort},
		{"both headers", MediaHeaderSize + SBCHeaderSize, nil},
		{"with payload", 200, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMediaPacket(make([]byte, tt.size))
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateMediaPacket(%d bytes) = %v, want nil", tt.size, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateMediaPacket(%d bytes) = %v, want %v", tt.size, err, tt.wantErr)
			}
		})
	}
}

// TestValidatePayloadSize covers payload size validation against the
// transport limit.
func TestValidatePayloadSize(t *testing.T) {
	if err := ValidatePayloadSize(nil, 10); !errors.Is(err, ErrPacketEmpty) {
		t.Errorf("nil payload: got %v, want ErrPacketEmpty", err)
	}
	if err := ValidatePayloadSize(make([]byte, 11), 10); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("oversized payload: got %v, want ErrPayloadTooLarge", err)
	}
	if err := ValidatePayloadSize(make([]byte, 10), 10); err != nil {
		t.Errorf("payload at limit: got %v, want nil", err)
	}
}

// TestFramesPerPayload checks how many frames fit in a payload.
func TestFramesPerPayload(t *testing.T) {
	tests := []struct {
		maxPayload, frameLen, want int
	}{
		{StorageSize, 120, 8},
		{601, 120, 5},
		{600, 120, 4},
		{1, 120, 0},
		{100, 0, 0},
		{4000, 10, MaxFrameCount},
	}
	for _, tt := range tests {
		if got := FramesPerPayload(tt.maxPayload, tt.frameLen); got != tt.want {
			t.Errorf("FramesPerPayload(%d, %d) = %d, want %d", tt.maxPayload, tt.frameLen, got, tt.want)
		}
	}
}
