// Package webrtcsession implements a single live WebRTC listen session.
// Grounded on the EggsFM webrtc.go reference (MediaEngine/
// SettingEngine/API construction, Opus-only codec registration, STUN
// config from environment) and on a PCM-bus-subscriber audio track
// shape, adapted to a single-session discipline and real Opus encoding
// of the PCM bus (gopkg.in/hraban/opus.v2).
package webrtcsession

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	opus "gopkg.in/hraban/opus.v2"

	"github.com/studiocommand/engine/internal/apierr"
	"github.com/studiocommand/engine/internal/pcmbus"
	"github.com/studiocommand/engine/internal/queue"
)

const (
	frameSamples  = 1920 // 20ms stereo at 48kHz
	opusOutputCap = 4000
	gatherTimeout = 2 * time.Second
	frameInterval = 20 * time.Millisecond
)

// runtime is WebRtcRuntime: the live session's peer connection handle, a
// stopped flag shared with background tasks, and the tasks themselves.
type runtime struct {
	pc           *webrtc.PeerConnection
	track        *webrtc.TrackLocalStaticSample
	meters       *webrtc.DataChannel
	stopped      atomic.Bool
	audioStarted atomic.Bool
	cancel       context.CancelFunc
}

// Manager holds at most one live session; a new offer tears down the
// previous one.
type Manager struct {
	mu      sync.Mutex
	current *runtime

	api     *webrtc.API
	stunURL string
	bus     *pcmbus.Bus
	state   *queue.State
}

// New builds the shared pion API (default interceptors, Opus-only
// MediaEngine) and a Manager.
func New(stunURL string, bus *pcmbus.Bus, state *queue.State) (*Manager, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, apierr.Server(err, "failed to register opus codec")
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, apierr.Server(err, "failed to register default interceptors")
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
	)

	return &Manager{api: api, stunURL: stunURL, bus: bus, state: state}, nil
}

// HandleOffer closes any previous session, builds a new peer connection,
// negotiates the SDP offer, and returns the answer after semi-trickle
// ICE gathering (bounded by gatherTimeout).
func (m *Manager) HandleOffer(offerSDP string) (string, error) {
	m.mu.Lock()
	prev := m.current
	m.current = nil
	m.mu.Unlock()
	if prev != nil {
		closeRuntime(prev)
	}

	pc, err := m.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{m.stunURL}}},
	})
	if err != nil {
		return "", apierr.Server(err, "failed to create peer connection")
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "studiocommand",
	)
	if err != nil {
		pc.Close()
		return "", apierr.Server(err, "failed to create audio track")
	}
	if _, err := pc.AddTrack(track); err != nil {
		pc.Close()
		return "", apierr.Server(err, "failed to add audio track")
	}

	ordered := true
	meters, err := pc.CreateDataChannel("meters", &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		pc.Close()
		return "", apierr.Server(err, "failed to create meters data channel")
	}

	rt := &runtime{pc: pc, track: track, meters: meters}

	ctx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			rt.stopped.Store(true)
			cancel()
		}
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}); err != nil {
		pc.Close()
		return "", apierr.Client("invalid offer: %v", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return "", apierr.Server(err, "failed to create answer")
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return "", apierr.Server(err, "failed to set local description")
	}

	select {
	case <-gatherComplete:
	case <-time.After(gatherTimeout):
		slog.Warn("webrtc: ICE gathering timed out, proceeding with partial candidates")
	}

	local := pc.LocalDescription()

	m.mu.Lock()
	m.current = rt
	m.mu.Unlock()

	go m.pumpAudio(ctx, rt)
	go m.pumpSilence(ctx, rt)
	go m.pumpMeters(ctx, rt)

	return local.SDP, nil
}

// AddICECandidate forwards a client-discovered candidate to the active
// session.
func (m *Manager) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	m.mu.Lock()
	rt := m.current
	m.mu.Unlock()
	if rt == nil {
		return apierr.Conflict("no active webrtc session")
	}
	if err := rt.pc.AddICECandidate(candidate); err != nil {
		return apierr.Server(err, "failed to add ice candidate")
	}
	return nil
}

func closeRuntime(rt *runtime) {
	rt.stopped.Store(true)
	if rt.cancel != nil {
		rt.cancel()
	}
	_ = rt.pc.Close()
}

// pumpAudio subscribes to the PCM bus, Opus-encodes 20ms frames, and
// writes them to the outbound track. On lag from the bus it drops and
// continues.
func (m *Manager) pumpAudio(ctx context.Context, rt *runtime) {
	enc, err := opus.NewEncoder(48000, 2, opus.AppAudio)
	if err != nil {
		slog.Error("webrtc: failed to create opus encoder", "error", err)
		return
	}

	ch, id := m.bus.Subscribe()
	defer m.bus.Unsubscribe(id)

	out := make([]byte, opusOutputCap)
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-ch:
			if !ok {
				return
			}
			if rt.stopped.Load() {
				return
			}
			pcm := bytesToInt16(chunk)
			if len(pcm) != frameSamples {
				continue // malformed/partial chunk; drop rather than desync framing
			}
			n, err := enc.Encode(pcm, out)
			if err != nil {
				slog.Warn("webrtc: opus encode failed", "error", err)
				continue
			}
			if err := rt.track.WriteSample(webrtcSample(out[:n])); err != nil {
				slog.Warn("webrtc: write sample failed", "error", err)
				continue
			}
			rt.audioStarted.Store(true)
		}
	}
}

// pumpSilence encodes silence until the audio pump's first real write or
// the session stops, guaranteeing early media before the decoder catches
// up.
func (m *Manager) pumpSilence(ctx context.Context, rt *runtime) {
	enc, err := opus.NewEncoder(48000, 2, opus.AppAudio)
	if err != nil {
		slog.Error("webrtc: failed to create silence encoder", "error", err)
		return
	}
	silence := make([]int16, frameSamples)
	out := make([]byte, opusOutputCap)

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if rt.stopped.Load() || rt.audioStarted.Load() {
				return
			}
			n, err := enc.Encode(silence, out)
			if err != nil {
				continue
			}
			_ = rt.track.WriteSample(webrtcSample(out[:n]))
		}
	}
}

// pumpMeters sends a meters snapshot over the data channel every 20ms.
func (m *Manager) pumpMeters(ctx context.Context, rt *runtime) {
	start := time.Now()
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if rt.stopped.Load() {
				return
			}
			vu := m.state.Vu()
			msg := meterMessage{
				TMs:   time.Since(start).Milliseconds(),
				RmsL:  vu.RmsL,
				RmsR:  vu.RmsR,
				PeakL: vu.PeakL,
				PeakR: vu.PeakR,
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if rt.meters.ReadyState() == webrtc.DataChannelStateOpen {
				_ = rt.meters.SendText(string(data))
			}
		}
	}
}

type meterMessage struct {
	TMs   int64   `json:"t_ms"`
	RmsL  float64 `json:"rms_l"`
	RmsR  float64 `json:"rms_r"`
	PeakL float64 `json:"peak_l"`
	PeakR float64 `json:"peak_r"`
}

func bytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
	}
	return out
}

// webrtcSample wraps an encoded Opus frame as a 20ms media sample.
func webrtcSample(data []byte) media.Sample {
	return media.Sample{Data: data, Duration: frameInterval}
}
