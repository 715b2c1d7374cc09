package meter

import (
	"math"
	"testing"

	"github.com/studiocommand/engine/internal/model"
)

func pcmFrame(l, r int16) []byte {
	return []byte{
		byte(uint16(l)), byte(uint16(l) >> 8),
		byte(uint16(r)), byte(uint16(r) >> 8),
	}
}

func TestAnalyzeSilenceIsZero(t *testing.T) {
	vu := Analyze(make([]byte, 40))
	if vu.PeakL != 0 || vu.PeakR != 0 || vu.RmsL != 0 || vu.RmsR != 0 {
		t.Fatalf("expected all-zero levels for silence, got %+v", vu)
	}
}

func TestAnalyzeFullScaleClampsToOne(t *testing.T) {
	var pcm []byte
	for i := 0; i < 10; i++ {
		pcm = append(pcm, pcmFrame(32767, -32768)...)
	}
	vu := Analyze(pcm)
	if vu.PeakL < 0.99 || vu.PeakL > 1 {
		t.Fatalf("peakL = %v, want ~1", vu.PeakL)
	}
	if vu.PeakR < 0.99 || vu.PeakR > 1 {
		t.Fatalf("peakR = %v, want ~1", vu.PeakR)
	}
	if vu.RmsL > 1 || vu.RmsR > 1 {
		t.Fatalf("rms exceeded 1: %+v", vu)
	}
}

func TestSmoothStaysWithinRange(t *testing.T) {
	prev := model.VuLevels{}
	raw := model.VuLevels{RmsL: 0.8, RmsR: 0.8, PeakL: 1, PeakR: 1}
	for i := 0; i < 50; i++ {
		prev = Smooth(prev, raw)
		if prev.RmsL < 0 || prev.RmsL > 1 || prev.PeakL < 0 || prev.PeakL > 1 {
			t.Fatalf("smoothed value left [0,1]: %+v", prev)
		}
	}
	if math.Abs(prev.PeakL-raw.PeakL) > 0.01 {
		t.Fatalf("peak did not converge: got %v want ~%v", prev.PeakL, raw.PeakL)
	}
}

func TestSmoothReleaseIsSlowerThanAttack(t *testing.T) {
	rising := Smooth(model.VuLevels{}, model.VuLevels{RmsL: 1})
	falling := Smooth(model.VuLevels{RmsL: 1}, model.VuLevels{RmsL: 0})
	attackGap := 1 - rising.RmsL
	releaseGap := falling.RmsL
	if releaseGap <= attackGap {
		t.Fatalf("release should move slower than attack: releaseGap=%v attackGap=%v", releaseGap, attackGap)
	}
}
