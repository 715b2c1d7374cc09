// Package playout implements the playout writer, the single long-lived
// producer that decodes the queue head into PCM, paces
// it at wall-clock rate, and fans it out to the encoder pipe, the PCM
// bus, and the meter/position state. Grounded in shape on the EggsFM
// icecast.go pipeOutput/supervise goroutines: a single producer
// goroutine owning a per-track cancellable subprocess.
package playout

import (
	"context"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/studiocommand/engine/internal/cart"
	"github.com/studiocommand/engine/internal/meter"
	"github.com/studiocommand/engine/internal/model"
	"github.com/studiocommand/engine/internal/output"
	"github.com/studiocommand/engine/internal/pcmbus"
	"github.com/studiocommand/engine/internal/queue"
	"github.com/studiocommand/engine/internal/topup"
)

const (
	sampleRate      = 48000
	chunkFrames     = 960 // 20ms at 48kHz
	chunkBytes      = chunkFrames * 4 // stereo s16le
	tickInterval    = 20 * time.Millisecond
	topUpInterval   = 2 * time.Second
	meterRateLimit  = 33 * time.Millisecond
)

// PersistFunc saves a queue snapshot; the caller (main) wires this to
// *store.Store.SaveQueue, kept as a function type so playout does not
// import the store package.
type PersistFunc func(items []*model.LogItem)

// Writer is the playout writer.
type Writer struct {
	queue   *queue.State
	topup   *topup.Controller
	output  *output.Supervisor
	bus     *pcmbus.Bus
	persist PersistFunc

	ffmpegBin string
	cartsDir  string

	lastTopUp time.Time
}

// New builds a Writer.
func New(q *queue.State, tc *topup.Controller, sup *output.Supervisor, bus *pcmbus.Bus, persist PersistFunc, ffmpegBin, cartsDir string) *Writer {
	return &Writer{
		queue:     q,
		topup:     tc,
		output:    sup,
		bus:       bus,
		persist:   persist,
		ffmpegBin: ffmpegBin,
		cartsDir:  cartsDir,
	}
}

// Run drives the writer until ctx is canceled. It is the one goroutine
// started for the process lifetime by main.
func (w *Writer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		w.maybeTopUp(ctx)

		head := w.queue.Head()
		if head == nil {
			w.emitSilence(ctx)
			continue
		}

		path, ok := cart.Resolve(w.cartsDir, head.Cart)
		if !ok {
			slog.Warn("playout: head cart could not be resolved, emitting silence", "id", head.ID, "cart", head.Cart)
			w.emitSilence(ctx)
			continue
		}

		// A freshly adopted head resets position (queue.reseedNowPlaying
		// does so when the title or artist changes) and meters
		// (queue.AdvanceIfHead/Replace clear them); nothing extra to do
		// here.
		w.playItem(ctx, head, path)
	}
}

// maybeTopUp polls the top-up controller on its own cadence, independent
// of track boundaries, so a long-playing track doesn't leave the queue
// starved for minutes at a time. Called only from the writer's single
// goroutine, so lastTopUp needs no locking.
func (w *Writer) maybeTopUp(ctx context.Context) {
	if time.Since(w.lastTopUp) < topUpInterval {
		return
	}
	w.topup.Tick(ctx)
	w.lastTopUp = time.Now()
}

// emitSilence publishes and writes one silence chunk, paced by one tick,
// so that the encoder pipe and PCM bus never idle while the queue is
// empty or unresolved.
func (w *Writer) emitSilence(ctx context.Context) {
	silence := make([]byte, chunkBytes)
	w.bus.Publish(silence)
	_, _ = w.output.Stdin().Write(silence)

	timer := time.NewTimer(tickInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// playItem spawns the decoder subprocess for path and paces its output
// until end-of-file, interruption, or ctx cancellation.
func (w *Writer) playItem(ctx context.Context, head *model.LogItem, path string) {
	itemCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", path,
		"-f", "s16le", "-ar", "48000", "-ac", "2",
		"pipe:1",
	}
	cmd := exec.CommandContext(itemCtx, w.ffmpegBin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		slog.Error("playout: failed to open decoder stdout", "error", err)
		w.finishItem(ctx, head, model.MarkerPlayed)
		return
	}
	if err := cmd.Start(); err != nil {
		slog.Error("playout: failed to start decoder", "path", path, "error", err)
		w.finishItem(ctx, head, model.MarkerPlayed)
		return
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	buf := make([]byte, chunkBytes)
	var framesWritten int64
	var smoothed model.VuLevels
	lastMeterUpdate := time.Time{}

	for {
		if ctx.Err() != nil {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			return
		}
		w.maybeTopUp(ctx)
		if w.queue.HeadID() != head.ID {
			// Operator already advanced the queue (skip/dump); tear
			// down the decoder without advancing again.
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			return
		}

		n, readErr := io.ReadFull(stdout, buf)
		if n == 0 && (readErr == io.EOF || readErr == io.ErrUnexpectedEOF) {
			break
		}
		if n > 0 {
			chunk := buf[:n]
			raw := meter.Analyze(chunk)

			published := make([]byte, n)
			copy(published, chunk)
			w.bus.Publish(published)

			select {
			case <-ctx.Done():
				_ = cmd.Process.Kill()
				_ = cmd.Wait()
				return
			case <-ticker.C:
			}
			_, _ = w.output.Stdin().Write(chunk)

			framesWritten += int64(n / 4)
			if time.Since(lastMeterUpdate) >= meterRateLimit {
				smoothed = meter.Smooth(smoothed, raw)
				w.queue.UpdateVu(smoothed)
				w.queue.SetPosition(float64(framesWritten) / sampleRate)
				lastMeterUpdate = time.Now()
			}
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			slog.Warn("playout: decoder read error, ending item", "path", path, "error", readErr)
			break
		}
	}

	_ = cmd.Wait()
	w.finishItem(ctx, head, model.MarkerPlayed)
}

// finishItem advances the queue if the head still matches, invokes
// top-up, and persists the new snapshot outside the lock.
func (w *Writer) finishItem(ctx context.Context, head *model.LogItem, reason model.Marker) {
	removed, ok := w.queue.AdvanceIfHead(head.ID, reason)
	if !ok {
		return
	}
	slog.Info("playout: item finished", "id", removed.ID, "title", removed.Title, "reason", reason)

	w.topup.Tick(ctx)
	w.lastTopUp = time.Now()

	if w.persist != nil {
		w.persist(w.queue.Snapshot())
	}
}
