package webrtcsession

import (
	"encoding/json"
	"testing"
)

func TestBytesToInt16RoundTrip(t *testing.T) {
	// -1 as int16 little-endian is 0xFF 0xFF; 256 is 0x00 0x01.
	raw := []byte{0xFF, 0xFF, 0x00, 0x01}
	got := bytesToInt16(raw)
	want := []int16{-1, 256}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestWebrtcSampleCarriesFrameDuration(t *testing.T) {
	data := []byte{1, 2, 3}
	sample := webrtcSample(data)
	if sample.Duration != frameInterval {
		t.Fatalf("duration = %v, want %v", sample.Duration, frameInterval)
	}
	if len(sample.Data) != 3 {
		t.Fatalf("data length = %d, want 3", len(sample.Data))
	}
}

func TestMeterMessageMarshalsExpectedKeys(t *testing.T) {
	msg := meterMessage{TMs: 42, RmsL: 0.1, RmsR: 0.2, PeakL: 0.3, PeakR: 0.4}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"t_ms", "rms_l", "rms_r", "peak_l", "peak_r"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("missing key %q in %s", key, data)
		}
	}
}
