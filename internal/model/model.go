// Package model holds the shared data types that flow between the queue,
// persistence, playout writer, and control plane: LogItem, the NowPlaying
// projection, VuLevels, and the output/top-up config and status types.
package model

import (
	"strconv"
	"strings"
)

// Marker is a LogItem's lifecycle state.
type Marker string

const (
	MarkerPlaying Marker = "playing"
	MarkerNext    Marker = "next"
	MarkerQueued  Marker = "queued"
	MarkerLocked  Marker = "locked"
	MarkerPlayed  Marker = "played"
	MarkerSkipped Marker = "skipped"
	MarkerDumped  Marker = "dumped"
)

// LogItem is a single queue entry.
type LogItem struct {
	ID     string `json:"id"`
	Tag    string `json:"tag"`
	Time   string `json:"time"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	State  Marker `json:"state"`
	Dur    string `json:"dur"` // declared duration, "M:SS"
	Cart   string `json:"cart"`
}

// DurationSeconds parses the declared "M:SS" duration. Returns 0 if it
// cannot be parsed, matching the original engine's crude parser.
func (li *LogItem) DurationSeconds() int {
	m, s, ok := strings.Cut(li.Dur, ":")
	if !ok {
		return 0
	}
	mv, err1 := strconv.Atoi(m)
	sv, err2 := strconv.Atoi(s)
	if err1 != nil || err2 != nil {
		return 0
	}
	return mv*60 + sv
}

// NowPlaying is the now-playing projection exposed on /status.
type NowPlaying struct {
	Title string  `json:"title"`
	Artist string `json:"artist"`
	Dur   int     `json:"dur"` // seconds
	Pos   int     `json:"pos"` // whole seconds
	PosFrac float64 `json:"pos_frac"`
}

// VuLevels holds four normalized [0,1] channel levels.
type VuLevels struct {
	RmsL  float64 `json:"rms_l"`
	RmsR  float64 `json:"rms_r"`
	PeakL float64 `json:"peak_l"`
	PeakR float64 `json:"peak_r"`
}

// Clamp01 clamps v into [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// StreamOutputConfig is the encoder target configuration, a singleton row.
type StreamOutputConfig struct {
	Type     string `json:"type"` // fixed: "icecast"
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Mount    string `json:"mount"`
	Username string `json:"username"`
	Password string `json:"password"`
	Codec    string `json:"codec"` // "mp3" | "aac"
	Bitrate  int    `json:"bitrate"`
	Enabled  bool   `json:"enabled"`

	MetaName        string `json:"meta_name,omitempty"`
	MetaGenre       string `json:"meta_genre,omitempty"`
	MetaDescription string `json:"meta_description,omitempty"`
	MetaPublic      bool   `json:"meta_public,omitempty"`
}

// OutputState is the output supervisor's lifecycle state.
type OutputState string

const (
	OutputStopped   OutputState = "stopped"
	OutputStarting  OutputState = "starting"
	OutputConnected OutputState = "connected"
	OutputError     OutputState = "error"
)

// StreamOutputStatus is derived, never persisted.
type StreamOutputStatus struct {
	State     OutputState `json:"state"`
	Uptime    int64       `json:"uptime"`
	LastError string      `json:"last_error"`
	Codec     string      `json:"codec"`
	Bitrate   int         `json:"bitrate"`
}

// TopUpConfig is the top-up controller policy, a singleton row.
type TopUpConfig struct {
	Enabled  bool   `json:"enabled"`
	Dir      string `json:"dir"`
	MinQueue int    `json:"min_queue"`
	Batch    int    `json:"batch"`
}

// IsUninitialized reports whether this row is a legacy/empty placeholder
// that must be migrated to defaults at load.
func (c *TopUpConfig) IsUninitialized() bool {
	return c.Dir == "" || c.MinQueue <= 0 || c.Batch <= 0
}

// TopUpStats is observability-only, never persisted.
type TopUpStats struct {
	LastScanMillis   int64  `json:"last_scan_millis"`
	LastDir          string `json:"last_dir"`
	FilesFound       int    `json:"files_found"`
	ItemsAppended    int    `json:"items_appended"`
	LastError        string `json:"last_error"`
	LastSkipReason   string `json:"last_skip_reason"`
}

// ProducerStatus is a read-only roster entry, never mutated by core
// components.
type ProducerStatus struct {
	Name      string  `json:"name"`
	Role      string  `json:"role"`
	Connected bool    `json:"connected"`
	OnAir     bool    `json:"onAir"`
	CamOn     bool    `json:"camOn"`
	Jitter    string  `json:"jitter"`
	Loss      string  `json:"loss"`
	Level     float64 `json:"level"`
}
