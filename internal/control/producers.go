package control

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/studiocommand/engine/internal/model"
)

// loadProducers reads the optional read-only roster file. A missing or
// empty path simply yields an empty roster; no core component ever
// mutates this slice after load.
func loadProducers(path string) []model.ProducerStatus {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("control: could not read producers file, roster will be empty", "path", path, "error", err)
		return nil
	}
	var producers []model.ProducerStatus
	if err := json.Unmarshal(data, &producers); err != nil {
		slog.Warn("control: could not parse producers file, roster will be empty", "path", path, "error", err)
		return nil
	}
	return producers
}
