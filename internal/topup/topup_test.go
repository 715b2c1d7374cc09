package topup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/studiocommand/engine/internal/model"
	"github.com/studiocommand/engine/internal/queue"
)

type fakePersister struct {
	saved model.TopUpConfig
	calls int
}

func (f *fakePersister) SaveTopUpConfig(cfg model.TopUpConfig) error {
	f.saved = cfg
	f.calls++
	return nil
}

func TestMigrateUninitializedConfig(t *testing.T) {
	cfg, did := Migrate(model.TopUpConfig{}, "/default/dir")
	if !did {
		t.Fatal("expected migration to occur for a zero-value config")
	}
	if cfg.Dir != "/default/dir" || cfg.MinQueue != 5 || cfg.Batch != 3 || !cfg.Enabled {
		t.Fatalf("unexpected migrated config: %+v", cfg)
	}

	cfg2, did2 := Migrate(model.TopUpConfig{Dir: "/already/set", MinQueue: 9, Batch: 2}, "/default/dir")
	if did2 {
		t.Fatal("expected no migration for an initialized config")
	}
	if cfg2.Dir != "/already/set" {
		t.Fatalf("unexpected mutation of initialized config: %+v", cfg2)
	}
}

func TestSetConfigValidatesBounds(t *testing.T) {
	c := New(model.TopUpConfig{}, "/d", "/c", "ffprobe", nil, queue.New())
	if err := c.SetConfig(model.TopUpConfig{MinQueue: 0, Batch: 1}); err == nil {
		t.Fatal("expected error for min_queue 0")
	}
	if err := c.SetConfig(model.TopUpConfig{MinQueue: 1, Batch: 200}); err == nil {
		t.Fatal("expected error for batch > 100")
	}
	if err := c.SetConfig(model.TopUpConfig{MinQueue: 5, Batch: 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTickSkipsWhenQueueAlreadyFull(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "one.mp3"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	q := queue.New()
	cartsDir := t.TempDir()
	cartPath := filepath.Join(cartsDir, "existing.mp3")
	if err := os.WriteFile(cartPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	q.Replace([]*model.LogItem{{ID: "a", Title: "A", Cart: "existing"}})

	persister := &fakePersister{}
	c := New(model.TopUpConfig{Enabled: true, Dir: dir, MinQueue: 1, Batch: 1}, dir, cartsDir, "ffprobe", persister, q)
	c.Tick(context.Background())

	if q.Len() != 1 {
		t.Fatalf("expected top-up to skip appending, queue len = %d", q.Len())
	}
	if c.Stats().LastSkipReason == "" {
		t.Fatal("expected a recorded skip reason")
	}
}

func TestSelfHealFallsBackToDefaultDir(t *testing.T) {
	defaultDir := t.TempDir()
	missingDir := filepath.Join(t.TempDir(), "gone")

	q := queue.New()
	persister := &fakePersister{}
	c := New(model.TopUpConfig{Enabled: true, Dir: missingDir, MinQueue: 5, Batch: 1}, defaultDir, defaultDir, "ffprobe", persister, q)

	healed := c.selfHeal(c.Config())
	if healed.Dir != defaultDir {
		t.Fatalf("expected self-heal to fall back to default dir, got %q", healed.Dir)
	}
	if persister.calls == 0 {
		t.Fatal("expected self-healed config to be persisted")
	}
}
