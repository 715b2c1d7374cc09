// Package output implements the output supervisor:
// the lifecycle controller for the external Icecast-encoder subprocess.
// Grounded on the EggsFM icecast streamer reference (exec.Cmd + io.Pipe
// stdin + line-buffered stderr tail with exponential-backoff restart),
// adapted deliberately: this supervisor does NOT auto-restart on error —
// it requires the operator to observe and restart it.
package output

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/studiocommand/engine/internal/apierr"
	"github.com/studiocommand/engine/internal/model"
)

const (
	startupGrace  = 800 * time.Millisecond
	maxStderrLines = 80
)

var lowSignalNoise = []string{"broken pipe", "conversion failed"}
var errorPatterns = []string{"unauthorized", "forbidden", "not found", "server returned"}

// Supervisor owns StreamOutputConfig + derived StreamOutputStatus plus
// the running subprocess, behind one mutex.
type Supervisor struct {
	mu sync.Mutex

	cfg    model.StreamOutputConfig
	status model.StreamOutputStatus

	ffmpegBin string

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	startedAt time.Time
	stderrRing []string

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Supervisor in the stopped state.
func New(cfg model.StreamOutputConfig, ffmpegBin string) *Supervisor {
	return &Supervisor{
		cfg:       cfg,
		status:    model.StreamOutputStatus{State: model.OutputStopped, Codec: cfg.Codec, Bitrate: cfg.Bitrate},
		ffmpegBin: ffmpegBin,
	}
}

// Config returns a copy of the current config.
func (s *Supervisor) Config() model.StreamOutputConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// SetConfig validates and applies a new config. Does not affect a
// running subprocess; the operator must Stop/Start to apply changes.
func (s *Supervisor) SetConfig(cfg model.StreamOutputConfig) error {
	if cfg.Codec != "mp3" && cfg.Codec != "aac" {
		return apierr.Client("codec must be mp3 or aac")
	}
	if cfg.Bitrate < 32 || cfg.Bitrate > 320 {
		return apierr.Client("bitrate must be in [32,320]")
	}
	if !strings.HasPrefix(cfg.Mount, "/") {
		return apierr.Client("mount must start with /")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.status.Codec = cfg.Codec
	s.status.Bitrate = cfg.Bitrate
	return nil
}

// Status returns a copy of the current derived status, with uptime
// recomputed against wall clock.
func (s *Supervisor) Status() model.StreamOutputStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	if st.State == model.OutputConnected && !s.startedAt.IsZero() {
		st.Uptime = int64(time.Since(s.startedAt).Seconds())
	}
	return st
}

// Stdin exposes the encoder's standard input for the playout writer,
// valid only while the supervisor is starting/connected.
func (s *Supervisor) Stdin() io.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stdin == nil {
		return io.Discard
	}
	return s.stdin
}

// Start spawns the encoder subprocess. Rejected with a conflict if
// already running, and with a client error if the password is empty.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cmd != nil {
		s.mu.Unlock()
		return apierr.Conflict("output already running")
	}
	cfg := s.cfg
	if cfg.Password == "" {
		s.status.State = model.OutputError
		s.status.LastError = "Icecast password is empty"
		s.mu.Unlock()
		return apierr.Client("Icecast password is empty")
	}
	s.mu.Unlock()

	args := buildArgs(cfg)
	runCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(runCtx, s.ffmpegBin, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return apierr.Server(err, "failed to open encoder stdin")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return apierr.Server(err, "failed to open encoder stderr")
	}

	if err := cmd.Start(); err != nil {
		cancel()
		s.mu.Lock()
		s.status.State = model.OutputError
		s.status.LastError = err.Error()
		s.mu.Unlock()
		return apierr.Server(err, "failed to start encoder")
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	s.cancel = cancel
	s.done = done
	s.stderrRing = nil
	s.startedAt = time.Time{}
	s.status = model.StreamOutputStatus{State: model.OutputStarting, Codec: cfg.Codec, Bitrate: cfg.Bitrate}
	s.mu.Unlock()

	go s.tailStderr(stderr, cfg.Password)
	go s.superviseExit(cmd, done)
	go s.promoteAfterGrace(cmd)

	return nil
}

// Stop kills the child, aborts the writer/stderr tasks, clears uptime,
// and transitions to stopped.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cmd := s.cmd
	cancel := s.cancel
	s.cmd = nil
	s.stdin = nil
	s.cancel = nil
	s.startedAt = time.Time{}
	s.status.State = model.OutputStopped
	s.status.Uptime = 0
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func (s *Supervisor) promoteAfterGrace(cmd *exec.Cmd) {
	time.Sleep(startupGrace)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != cmd {
		return // already stopped/replaced
	}
	if s.status.State != model.OutputStarting {
		return // already moved to error
	}
	if cmd.ProcessState != nil {
		return // already exited; superviseExit will set error
	}
	s.status.State = model.OutputConnected
	s.startedAt = time.Now()
}

func (s *Supervisor) superviseExit(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()
	close(done)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != cmd {
		return // already stopped deliberately
	}
	s.cmd = nil
	s.stdin = nil
	s.startedAt = time.Time{}
	if err != nil {
		s.status.State = model.OutputError
		s.status.LastError = s.lastMeaningfulError(err)
	} else {
		s.status.State = model.OutputStopped
	}
}

// lastMeaningfulError returns the last non-noise stderr line, or the
// exit status if none survive filtering. Must be called with mu held.
func (s *Supervisor) lastMeaningfulError(exitErr error) string {
	for i := len(s.stderrRing) - 1; i >= 0; i-- {
		line := s.stderrRing[i]
		if isLowSignal(line) {
			continue
		}
		return line
	}
	return exitErr.Error()
}

func isLowSignal(line string) bool {
	lower := strings.ToLower(line)
	for _, noise := range lowSignalNoise {
		if strings.Contains(lower, noise) {
			return true
		}
	}
	return false
}

func (s *Supervisor) tailStderr(r io.Reader, password string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := redact(scanner.Text(), password)
		slog.Debug("output encoder stderr", "line", line)

		s.mu.Lock()
		s.stderrRing = append(s.stderrRing, line)
		if len(s.stderrRing) > maxStderrLines {
			s.stderrRing = s.stderrRing[len(s.stderrRing)-maxStderrLines:]
		}
		if matchesErrorPattern(line) && s.status.State != model.OutputError {
			s.status.State = model.OutputError
			s.status.LastError = line
		}
		s.mu.Unlock()
	}
}

// redact replaces the current password literal and collapses any
// Authorization header line.
func redact(line, password string) string {
	if password != "" {
		line = strings.ReplaceAll(line, password, "****")
	}
	if strings.Contains(line, "Authorization:") {
		return "Authorization: ****"
	}
	return line
}

func matchesErrorPattern(line string) bool {
	lower := strings.ToLower(line)
	for _, pat := range errorPatterns {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	return false
}

// buildArgs constructs the ffmpeg Icecast-direction command line.
func buildArgs(cfg model.StreamOutputConfig) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-re",
		"-f", "s16le", "-ar", "48000", "-ac", "2",
		"-i", "pipe:0",
	}
	switch cfg.Codec {
	case "aac":
		args = append(args, "-c:a", "aac", "-b:a", fmt.Sprintf("%dk", cfg.Bitrate), "-f", "adts")
	default:
		args = append(args, "-c:a", "libmp3lame", "-b:a", fmt.Sprintf("%dk", cfg.Bitrate), "-f", "mp3")
	}
	target := fmt.Sprintf("icecast://%s:%s@%s:%d%s", cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Mount)
	args = append(args, target)
	return args
}
