// Package probe wraps an ffprobe invocation to resolve an audio file's
// duration in seconds, used by the top-up controller. Grounded on an
// exec.CommandContext + captured-stderr subprocess shape.
package probe

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Duration runs ffprobeBin against path and returns the format duration
// in seconds. A five-second timeout bounds a stuck/misbehaving probe.
func Duration(ctx context.Context, ffprobeBin, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	cmd := exec.CommandContext(ctx, ffprobeBin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe %q: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %q: unparsable duration %q: %w", path, stdout.String(), err)
	}
	return seconds, nil
}
