package control

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/studiocommand/engine/internal/apierr"
	"github.com/studiocommand/engine/internal/auth"
	"github.com/studiocommand/engine/internal/model"
	"github.com/studiocommand/engine/internal/output"
	"github.com/studiocommand/engine/internal/queue"
	"github.com/studiocommand/engine/internal/sysinfo"
	"github.com/studiocommand/engine/internal/topup"
	"github.com/studiocommand/engine/internal/webrtcsession"
)

// configStore is the persistence surface the control plane needs, kept
// narrow to avoid coupling every handler to *store.Store directly.
type configStore interface {
	SaveQueue(items []*model.LogItem) error
	SaveOutputConfig(cfg model.StreamOutputConfig) error
	SaveTopUpConfig(cfg model.TopUpConfig) error
}

// Server holds every dependency the control plane's handlers touch.
// Handlers never reach into the playout writer or the encoder pipe
// directly — only the queue lock and the other components' own public
// methods.
type Server struct {
	queue   *queue.State
	output  *output.Supervisor
	topup   *topup.Controller
	webrtc  *webrtcsession.Manager
	store   configStore
	auth    *auth.Auth
	version string

	producers []model.ProducerStatus
}

// New builds a Server. auth may be nil (no operator credentials
// configured), in which case every route is open.
func New(q *queue.State, sup *output.Supervisor, tc *topup.Controller, wm *webrtcsession.Manager, store configStore, a *auth.Auth, version, producersFile string) *Server {
	return &Server{
		queue:     q,
		output:    sup,
		topup:     tc,
		webrtc:    wm,
		store:     store,
		auth:      a,
		version:   version,
		producers: loadProducers(producersFile),
	}
}

// Router builds the gin.Engine mounting the full control-plane route
// table.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), SecurityHeadersMiddleware())

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "OK") })

	r.POST("/api/v1/auth/login", s.handleLogin)

	api := r.Group("/api/v1")
	api.Use(AuthRequired(s.auth))
	{
		api.GET("/status", s.handleStatus)
		api.GET("/meters", s.handleMeters)
		api.GET("/system/info", s.handleSystemInfo)

		api.POST("/transport/skip", s.handleTransport(model.MarkerSkipped))
		api.POST("/transport/dump", s.handleTransport(model.MarkerDumped))
		api.POST("/transport/reload", s.handleReload)

		api.POST("/queue/remove", s.handleQueueRemove)
		api.POST("/queue/move", s.handleQueueMove)
		api.POST("/queue/reorder", s.handleQueueReorder)
		api.POST("/queue/insert", s.handleQueueInsert)

		api.GET("/output", s.handleOutputGet)
		api.POST("/output/config", s.handleOutputConfig)
		api.POST("/output/start", s.handleOutputStart)
		api.POST("/output/stop", s.handleOutputStop)

		api.GET("/playout/topup", s.handleTopUpGet)
		api.POST("/playout/topup/config", s.handleTopUpConfig)

		api.POST("/webrtc/offer", s.handleWebRTCOffer)
		api.POST("/webrtc/candidate", s.handleWebRTCCandidate)
	}

	r.GET("/admin/api/v1/update/status", AuthRequired(s.auth), s.handleUpdateStatus)

	return r
}

func (s *Server) persistQueue() {
	if s.store == nil {
		return
	}
	if err := s.store.SaveQueue(s.queue.Snapshot()); err != nil {
		slog.Error("control: failed to persist queue", "error", err)
	}
}

// handleLogin issues a bearer token for the single operator credential
// pair. A nil auth means no operator credentials are configured; login
// is then itself disabled (there is nothing to authenticate against).
func (s *Server) handleLogin(c *gin.Context) {
	if s.auth == nil {
		apierr.Write(c, apierr.Conflict("operator authentication is not configured"))
		return
	}
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apierr.Write(c, apierr.Client("invalid request body"))
		return
	}
	token, err := s.auth.Authenticate(body.Username, body.Password, c.ClientIP())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "token": token})
}

// statusResponse mirrors: queue and log alias the same array.
type statusResponse struct {
	Version   string                  `json:"version"`
	Now       model.NowPlaying        `json:"now"`
	Vu        model.VuLevels          `json:"vu"`
	Queue     []*model.LogItem        `json:"queue"`
	Log       []*model.LogItem        `json:"log"`
	Producers []model.ProducerStatus  `json:"producers"`
	System    sysinfo.Info            `json:"system"`
}

func (s *Server) handleStatus(c *gin.Context) {
	items := s.queue.Snapshot()
	c.JSON(http.StatusOK, statusResponse{
		Version:   s.version,
		Now:       s.queue.NowPlaying(),
		Vu:        s.queue.Vu(),
		Queue:     items,
		Log:       items,
		Producers: s.producers,
		System:    sysinfo.Collect(s.version),
	})
}

func (s *Server) handleMeters(c *gin.Context) {
	c.JSON(http.StatusOK, s.queue.Vu())
}

func (s *Server) handleSystemInfo(c *gin.Context) {
	c.JSON(http.StatusOK, sysinfo.Collect(s.version))
}

type updateStatusResponse struct {
	State      string  `json:"state"`
	Current    string  `json:"current"`
	Available  *string `json:"available"`
	Staged     *string `json:"staged"`
	LastResult *string `json:"last_result"`
	Progress   *int    `json:"progress"`
	Arch       string  `json:"arch"`
}

func (s *Server) handleUpdateStatus(c *gin.Context) {
	c.JSON(http.StatusOK, updateStatusResponse{
		State:   "idle",
		Current: s.version,
		Arch:    sysinfo.Collect(s.version).Arch,
	})
}

// handleTransport returns a handler that advances the queue head with the
// given reason. This is an operator-driven advance distinct from the
// playout writer's own natural-EOF advance: it races the writer's
// per-tick head check, which tears down the in-flight decoder without
// re-advancing once it observes the head has already moved.
func (s *Server) handleTransport(reason model.Marker) gin.HandlerFunc {
	return func(c *gin.Context) {
		head := s.queue.HeadID()
		if head == "" {
			apierr.OK(c)
			return
		}
		s.queue.AdvanceIfHead(head, reason)
		s.persistQueue()
		apierr.OK(c)
	}
}

// handleReload resets the queue to empty, an operator-testing-only
// operation never invoked by startup.
func (s *Server) handleReload(c *gin.Context) {
	s.queue.Replace(nil)
	s.persistQueue()
	apierr.OK(c)
}

func (s *Server) handleQueueRemove(c *gin.Context) {
	var body struct {
		Index int `json:"index"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apierr.Write(c, apierr.Client("invalid request body"))
		return
	}
	if err := s.queue.Remove(body.Index); err != nil {
		apierr.Write(c, err)
		return
	}
	s.persistQueue()
	apierr.OK(c)
}

func (s *Server) handleQueueMove(c *gin.Context) {
	var body struct {
		From int `json:"from"`
		To   int `json:"to"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apierr.Write(c, apierr.Client("invalid request body"))
		return
	}
	if err := s.queue.Move(body.From, body.To); err != nil {
		apierr.Write(c, err)
		return
	}
	s.persistQueue()
	apierr.OK(c)
}

func (s *Server) handleQueueReorder(c *gin.Context) {
	var body struct {
		Order []string `json:"order"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apierr.Write(c, apierr.Client("invalid request body"))
		return
	}
	if err := s.queue.Reorder(body.Order); err != nil {
		apierr.Write(c, err)
		return
	}
	s.persistQueue()
	apierr.OK(c)
}

func (s *Server) handleQueueInsert(c *gin.Context) {
	var body struct {
		After int `json:"after"`
		Item  struct {
			Tag    string `json:"tag"`
			Title  string `json:"title"`
			Artist string `json:"artist"`
			Dur    string `json:"dur"`
			Cart   string `json:"cart"`
		} `json:"item"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apierr.Write(c, apierr.Client("invalid request body"))
		return
	}
	item := &model.LogItem{
		ID:     uuid.NewString(),
		Tag:    body.Item.Tag,
		Title:  body.Item.Title,
		Artist: body.Item.Artist,
		Dur:    body.Item.Dur,
		Cart:   body.Item.Cart,
	}
	if err := s.queue.Insert(body.After, item); err != nil {
		apierr.Write(c, err)
		return
	}
	s.persistQueue()
	apierr.OK(c)
}

type outputResponse struct {
	Config model.StreamOutputConfig `json:"config"`
	Status model.StreamOutputStatus `json:"status"`
}

func (s *Server) handleOutputGet(c *gin.Context) {
	c.JSON(http.StatusOK, outputResponse{Config: s.output.Config(), Status: s.output.Status()})
}

func (s *Server) handleOutputConfig(c *gin.Context) {
	var cfg model.StreamOutputConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		apierr.Write(c, apierr.Client("invalid request body"))
		return
	}
	if err := s.output.SetConfig(cfg); err != nil {
		apierr.Write(c, err)
		return
	}
	if s.store != nil {
		if err := s.store.SaveOutputConfig(cfg); err != nil {
			apierr.Write(c, apierr.Server(err, "persist output config"))
			return
		}
	}
	apierr.OK(c)
}

func (s *Server) handleOutputStart(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.output.Start(ctx); err != nil {
		apierr.Write(c, err)
		return
	}
	apierr.OK(c)
}

func (s *Server) handleOutputStop(c *gin.Context) {
	s.output.Stop()
	apierr.OK(c)
}

type topUpResponse struct {
	Config model.TopUpConfig `json:"config"`
	Stats  model.TopUpStats  `json:"stats"`
}

func (s *Server) handleTopUpGet(c *gin.Context) {
	c.JSON(http.StatusOK, topUpResponse{Config: s.topup.Config(), Stats: s.topup.Stats()})
}

func (s *Server) handleTopUpConfig(c *gin.Context) {
	var cfg model.TopUpConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		apierr.Write(c, apierr.Client("invalid request body"))
		return
	}
	if err := s.topup.SetConfig(cfg); err != nil {
		apierr.Write(c, err)
		return
	}
	apierr.OK(c)
}

func (s *Server) handleWebRTCOffer(c *gin.Context) {
	var body struct {
		SDP  string `json:"sdp"`
		Type string `json:"type"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apierr.Write(c, apierr.Client("invalid request body"))
		return
	}
	if body.Type != "offer" {
		apierr.Write(c, apierr.Client("type must be \"offer\""))
		return
	}
	answerSDP, err := s.webrtc.HandleOffer(body.SDP)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sdp": answerSDP, "type": "answer"})
}

func (s *Server) handleWebRTCCandidate(c *gin.Context) {
	var body struct {
		Candidate struct {
			Candidate     string `json:"candidate"`
			SDPMid        string `json:"sdpMid"`
			SDPMLineIndex uint16 `json:"sdpMLineIndex"`
		} `json:"candidate"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apierr.Write(c, apierr.Client("invalid request body"))
		return
	}
	mid := body.Candidate.SDPMid
	idx := body.Candidate.SDPMLineIndex
	init := webrtc.ICECandidateInit{
		Candidate:     body.Candidate.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	}
	if err := s.webrtc.AddICECandidate(init); err != nil {
		apierr.Write(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
