// Package topup implements the queue top-up controller. Grounded in
// shape on a reconcile/scan flow: maintain a minimum active queue depth
// by randomly appending eligible files from a configured directory, with
// a fallback directory and legacy-config self-heal.
package topup

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dhowden/tag"
	"github.com/google/uuid"

	"github.com/studiocommand/engine/internal/apierr"
	"github.com/studiocommand/engine/internal/cart"
	"github.com/studiocommand/engine/internal/library"
	"github.com/studiocommand/engine/internal/model"
	"github.com/studiocommand/engine/internal/probe"
	"github.com/studiocommand/engine/internal/queue"
)

// Persister is implemented by the store package; kept as an interface
// here so topup does not import the store package.
type Persister interface {
	SaveTopUpConfig(cfg model.TopUpConfig) error
}

// Controller owns TopUpConfig and TopUpStats behind one mutex.
type Controller struct {
	mu sync.Mutex

	cfg   model.TopUpConfig
	stats model.TopUpStats

	defaultDir string
	cartsDir   string
	ffprobeBin string

	store Persister
	queue *queue.State
}

// New builds a Controller. cfg is the loaded (and already migrated, if
// needed) TopUpConfig.
func New(cfg model.TopUpConfig, defaultDir, cartsDir, ffprobeBin string, store Persister, q *queue.State) *Controller {
	return &Controller{
		cfg:        cfg,
		defaultDir: defaultDir,
		cartsDir:   cartsDir,
		ffprobeBin: ffprobeBin,
		store:      store,
		queue:      q,
	}
}

// Migrate applies the legacy-row-migration rule: an uninitialized config
// (empty dir, zero min_queue, or zero batch) is replaced with defaults.
// Returns the possibly-migrated config and whether migration occurred.
func Migrate(cfg model.TopUpConfig, defaultDir string) (model.TopUpConfig, bool) {
	if !cfg.IsUninitialized() {
		return cfg, false
	}
	return model.TopUpConfig{
		Enabled:  true,
		Dir:      defaultDir,
		MinQueue: 5,
		Batch:    3,
	}, true
}

// Config returns a copy of the current config.
func (c *Controller) Config() model.TopUpConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Stats returns a copy of the current stats.
func (c *Controller) Stats() model.TopUpStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// SetConfig validates and applies a new config, persisting it.
func (c *Controller) SetConfig(cfg model.TopUpConfig) error {
	if cfg.MinQueue <= 0 || cfg.MinQueue > 100 {
		return apierr.Client("min_queue must be in [1,100]")
	}
	if cfg.Batch <= 0 || cfg.Batch > 100 {
		return apierr.Client("batch must be in [1,100]")
	}
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	if c.store != nil {
		if err := c.store.SaveTopUpConfig(cfg); err != nil {
			slog.Error("failed to persist topup config", "error", err)
		}
	}
	return nil
}

// activeLength counts items whose state is not played, whose cart is
// non-empty, and whose cart path exists on disk.
func (c *Controller) activeLength(items []*model.LogItem) int {
	n := 0
	for _, it := range items {
		if it.State == model.MarkerPlayed {
			continue
		}
		if it.Cart == "" {
			continue
		}
		if !cart.Exists(c.cartsDir, it.Cart) {
			continue
		}
		n++
	}
	return n
}

// Tick runs one top-up policy evaluation. It is safe to call on a fixed
// interval (the playout writer calls it every 2s, decoupled from track
// boundaries).
func (c *Controller) Tick(ctx context.Context) {
	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()

	// Directory self-heal and legacy min/batch auto-correction run on
	// every tick, before the enabled check.
	cfg = c.selfHeal(cfg)

	if !cfg.Enabled {
		return
	}

	items := c.queue.Snapshot()
	active := c.activeLength(items)
	if active >= cfg.MinQueue {
		c.recordSkip(fmt.Sprintf("active length %d >= min_queue %d", active, cfg.MinQueue))
		return
	}

	files, dirUsed, scanErr := c.scanWithFallback(cfg)
	if scanErr != nil || len(files) == 0 {
		msg := "no eligible files found"
		if scanErr != nil {
			msg = scanErr.Error()
		}
		c.recordError(msg)
		return
	}

	picked := pickUnique(files, cfg.Batch)
	appended := make([]*model.LogItem, 0, len(picked))
	for _, f := range picked {
		title, artist := readTrackTags(f)
		durSeconds := 0.0
		if d, err := probe.Duration(ctx, c.ffprobeBin, f); err != nil {
			c.recordError(fmt.Sprintf("duration probe failed for %s: %v", f, err))
		} else {
			durSeconds = d
		}
		appended = append(appended, &model.LogItem{
			ID:     uuid.NewString(),
			Tag:    "MUS",
			Title:  title,
			Artist: artist,
			State:  model.MarkerQueued,
			Dur:    formatMinSec(durSeconds),
			Cart:   f,
		})
	}

	c.queue.Append(appended...)

	c.mu.Lock()
	c.stats = model.TopUpStats{
		LastScanMillis: time.Now().UnixMilli(),
		LastDir:        dirUsed,
		FilesFound:     len(files),
		ItemsAppended:  len(appended),
	}
	c.mu.Unlock()
}

func (c *Controller) selfHeal(cfg model.TopUpConfig) model.TopUpConfig {
	changed := false
	if migrated, did := Migrate(cfg, c.defaultDir); did {
		cfg = migrated
		changed = true
	}
	if cfg.Enabled {
		if _, err := os.Stat(cfg.Dir); err != nil {
			if _, derr := os.Stat(c.defaultDir); derr == nil && cfg.Dir != c.defaultDir {
				cfg.Dir = c.defaultDir
				changed = true
			}
		}
	}
	if changed {
		c.mu.Lock()
		c.cfg = cfg
		c.mu.Unlock()
		if c.store != nil {
			if err := c.store.SaveTopUpConfig(cfg); err != nil {
				slog.Error("failed to persist self-healed topup config", "error", err)
			}
		}
	}
	return cfg
}

func (c *Controller) scanWithFallback(cfg model.TopUpConfig) (files []string, dirUsed string, err error) {
	files, err = library.Scan(cfg.Dir)
	if err == nil && len(files) > 0 {
		return files, cfg.Dir, nil
	}
	firstErr := err
	if cfg.Dir == c.defaultDir {
		if firstErr != nil {
			return nil, cfg.Dir, firstErr
		}
		return nil, cfg.Dir, nil
	}
	fallbackFiles, fallbackErr := library.Scan(c.defaultDir)
	if fallbackErr != nil || len(fallbackFiles) == 0 {
		if firstErr != nil {
			return nil, cfg.Dir, firstErr
		}
		return nil, cfg.Dir, nil
	}
	slog.Warn("topup falling back to default directory",
		"configured", cfg.Dir, "default", c.defaultDir, "cause", firstErr)
	return fallbackFiles, c.defaultDir, nil
}

func (c *Controller) recordSkip(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.LastSkipReason = reason
}

func (c *Controller) recordError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.LastError = msg
}

// pickUnique picks up to n unique indices from files using bounded
// retry (at most 20*n attempts).
func pickUnique(files []string, n int) []string {
	if n > len(files) {
		n = len(files)
	}
	picked := make(map[int]bool, n)
	out := make([]string, 0, n)
	maxAttempts := 20 * n
	for attempt := 0; attempt < maxAttempts && len(out) < n; attempt++ {
		idx := rand.Intn(len(files))
		if picked[idx] {
			continue
		}
		picked[idx] = true
		out = append(out, files[idx])
	}
	return out
}

// deriveTitle turns a file stem into a display title: underscores become
// spaces.
func deriveTitle(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ReplaceAll(base, "_", " ")
}

// readTrackTags derives the title from the file stem and reads
// ID3/Vorbis/FLAC metadata only to supply the artist, falling back to
// "TopUp" when tags are absent, unreadable, or carry no artist frame.
// The stem stays authoritative for the title even when tags are
// present, so a re-tagged file doesn't silently rename a cart.
func readTrackTags(path string) (title, artist string) {
	title, artist = deriveTitle(path), "TopUp"

	f, err := os.Open(path)
	if err != nil {
		return title, artist
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return title, artist
	}
	if m.Artist() != "" {
		artist = m.Artist()
	}
	return title, artist
}

func formatMinSec(seconds float64) string {
	if seconds <= 0 {
		return "0:00"
	}
	total := int(seconds)
	m := total / 60
	s := total % 60
	return strconv.Itoa(m) + ":" + pad2(s)
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
