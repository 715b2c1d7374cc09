package store

import (
	"path/filepath"
	"testing"

	"github.com/studiocommand/engine/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestQueueRoundTrip(t *testing.T) {
	s := openTestStore(t)
	items := []*model.LogItem{
		{ID: "a", Title: "A", Artist: "Artist A", State: model.MarkerPlaying, Cart: "a"},
		{ID: "b", Title: "B", Artist: "Artist B", State: model.MarkerQueued, Cart: "b"},
	}
	if err := s.SaveQueue(items); err != nil {
		t.Fatalf("SaveQueue: %v", err)
	}
	loaded, err := s.LoadQueue()
	if err != nil {
		t.Fatalf("LoadQueue: %v", err)
	}
	if len(loaded) != 2 || loaded[0].ID != "a" || loaded[1].ID != "b" {
		t.Fatalf("unexpected loaded queue: %+v", loaded)
	}
}

func TestLoadQueueStripsLegacyPlaceholders(t *testing.T) {
	s := openTestStore(t)
	items := []*model.LogItem{
		{ID: "a", Title: "Queued Track 12", Artist: "Someone", Cart: "a"},
		{ID: "b", Title: "Real Track", Artist: "Various", Cart: "b"},
		{ID: "c", Title: "Real Track", Artist: "Real Artist", Cart: ""},
		{ID: "d", Title: "Real Track", Artist: "Real Artist", Cart: "d"},
	}
	if err := s.SaveQueue(items); err != nil {
		t.Fatalf("SaveQueue: %v", err)
	}
	loaded, err := s.LoadQueue()
	if err != nil {
		t.Fatalf("LoadQueue: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != "d" {
		t.Fatalf("expected only the non-legacy row to survive, got %+v", loaded)
	}
}

func TestOutputConfigRoundTrip(t *testing.T) {
	s := openTestStore(t)
	cfg := model.StreamOutputConfig{Type: "icecast", Host: "h", Port: 8000, Mount: "/x", Codec: "aac", Bitrate: 192, Enabled: true}
	if err := s.SaveOutputConfig(cfg); err != nil {
		t.Fatalf("SaveOutputConfig: %v", err)
	}
	loaded, err := s.LoadOutputConfig()
	if err != nil {
		t.Fatalf("LoadOutputConfig: %v", err)
	}
	if loaded != cfg {
		t.Fatalf("loaded config = %+v, want %+v", loaded, cfg)
	}
}

func TestOutputConfigDefaultsWhenUnset(t *testing.T) {
	s := openTestStore(t)
	loaded, err := s.LoadOutputConfig()
	if err != nil {
		t.Fatalf("LoadOutputConfig: %v", err)
	}
	if loaded.Type != "icecast" || loaded.Codec != "mp3" || loaded.Bitrate != 128 {
		t.Fatalf("unexpected defaults: %+v", loaded)
	}
}

func TestTopUpConfigRoundTrip(t *testing.T) {
	s := openTestStore(t)
	cfg := model.TopUpConfig{Enabled: true, Dir: "/data", MinQueue: 5, Batch: 3}
	if err := s.SaveTopUpConfig(cfg); err != nil {
		t.Fatalf("SaveTopUpConfig: %v", err)
	}
	loaded, err := s.LoadTopUpConfig()
	if err != nil {
		t.Fatalf("LoadTopUpConfig: %v", err)
	}
	if loaded != cfg {
		t.Fatalf("loaded config = %+v, want %+v", loaded, cfg)
	}
}
