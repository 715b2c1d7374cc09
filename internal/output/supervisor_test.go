package output

import (
	"context"
	"testing"

	"github.com/studiocommand/engine/internal/model"
)

func TestSetConfigValidation(t *testing.T) {
	s := New(model.StreamOutputConfig{Codec: "mp3", Bitrate: 128, Mount: "/stream"}, "ffmpeg")

	if err := s.SetConfig(model.StreamOutputConfig{Codec: "wav", Bitrate: 128, Mount: "/stream"}); err == nil {
		t.Fatal("expected error for unsupported codec")
	}
	if err := s.SetConfig(model.StreamOutputConfig{Codec: "mp3", Bitrate: 16, Mount: "/stream"}); err == nil {
		t.Fatal("expected error for bitrate below 32")
	}
	if err := s.SetConfig(model.StreamOutputConfig{Codec: "mp3", Bitrate: 128, Mount: "stream"}); err == nil {
		t.Fatal("expected error for mount missing leading slash")
	}
	if err := s.SetConfig(model.StreamOutputConfig{Codec: "aac", Bitrate: 192, Mount: "/live"}); err != nil {
		t.Fatalf("unexpected error for valid config: %v", err)
	}
}

func TestStartRejectsEmptyPassword(t *testing.T) {
	s := New(model.StreamOutputConfig{Codec: "mp3", Bitrate: 128, Mount: "/stream", Password: ""}, "ffmpeg")
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error starting with an empty password")
	}
	if s.Status().State != model.OutputError {
		t.Fatalf("expected error state after rejected start, got %s", s.Status().State)
	}
}

func TestRedactHidesPasswordAndAuthHeader(t *testing.T) {
	line := redact("connecting with pw hunter2 now", "hunter2")
	if line != "connecting with pw **** now" {
		t.Fatalf("password not redacted: %q", line)
	}
	line2 := redact(`Authorization: Basic dXNlcjpwYXNz`, "hunter2")
	if line2 != "Authorization: ****" {
		t.Fatalf("authorization header not collapsed: %q", line2)
	}
}

func TestIsLowSignalFiltersKnownNoise(t *testing.T) {
	if !isLowSignal("write: broken pipe") {
		t.Fatal("expected broken pipe to be low-signal")
	}
	if isLowSignal("401 unauthorized") {
		t.Fatal("did not expect unauthorized to be filtered as low-signal")
	}
}

func TestMatchesErrorPattern(t *testing.T) {
	if !matchesErrorPattern("Server returned 403 Forbidden") {
		t.Fatal("expected forbidden line to match error pattern")
	}
	if matchesErrorPattern("frame=  100 fps=25") {
		t.Fatal("did not expect a normal progress line to match error pattern")
	}
}
