// Package meter computes per-chunk VU levels (peak/RMS) and applies
// one-pole attack/release smoothing.
package meter

import (
	"math"

	"github.com/studiocommand/engine/internal/model"
)

const sampleScale = 32768.0

// Analyze computes per-chunk, unsmoothed VuLevels from an interleaved
// s16le stereo PCM chunk: peak is the max absolute sample per channel,
// RMS is sqrt(mean(square)), both normalized to 32768 and clamped to
// [0,1].
func Analyze(pcm []byte) model.VuLevels {
	var peakL, peakR float64
	var sumSqL, sumSqR float64
	var nL, nR int

	// Each frame is 4 bytes: L (int16 LE), R (int16 LE).
	for i := 0; i+3 < len(pcm); i += 4 {
		l := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		r := int16(uint16(pcm[i+2]) | uint16(pcm[i+3])<<8)

		fl := math.Abs(float64(l))
		fr := math.Abs(float64(r))
		if fl > peakL {
			peakL = fl
		}
		if fr > peakR {
			peakR = fr
		}
		sumSqL += float64(l) * float64(l)
		sumSqR += float64(r) * float64(r)
		nL++
		nR++
	}

	var rmsL, rmsR float64
	if nL > 0 {
		rmsL = math.Sqrt(sumSqL/float64(nL)) / sampleScale
	}
	if nR > 0 {
		rmsR = math.Sqrt(sumSqR/float64(nR)) / sampleScale
	}

	return model.VuLevels{
		RmsL:  model.Clamp01(rmsL),
		RmsR:  model.Clamp01(rmsR),
		PeakL: model.Clamp01(peakL / sampleScale),
		PeakR: model.Clamp01(peakR / sampleScale),
	}
}

// Coefficients for one-pole smoothing: attack applies when the new value
// is rising, release when it is falling.
const (
	RmsAttack  = 0.95
	RmsRelease = 0.55
	PeakAttack = 1.00
	PeakRelease = 0.65
)

func smooth(prev, next, attack, release float64) float64 {
	coef := release
	if next > prev {
		coef = attack
	}
	return prev + coef*(next-prev)
}

// Smooth applies one-pole attack/release smoothing to a fresh raw
// measurement given the previous smoothed state.
func Smooth(prev, raw model.VuLevels) model.VuLevels {
	return model.VuLevels{
		RmsL:  model.Clamp01(smooth(prev.RmsL, raw.RmsL, RmsAttack, RmsRelease)),
		RmsR:  model.Clamp01(smooth(prev.RmsR, raw.RmsR, RmsAttack, RmsRelease)),
		PeakL: model.Clamp01(smooth(prev.PeakL, raw.PeakL, PeakAttack, PeakRelease)),
		PeakR: model.Clamp01(smooth(prev.PeakR, raw.PeakR, PeakAttack, PeakRelease)),
	}
}
