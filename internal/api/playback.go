// Package api provides HTTP handlers for the REST control surface.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mkohlmann/cadence/internal/playback"
)

// ErrorResponse is the common error payload
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Request/Response DTOs

// SetQueueRequest replaces the playback queue
type SetQueueRequest struct {
	Tracks     []playback.TrackInfo `json:"tracks" binding:"required"`
	StartIndex int                  `json:"startIndex"`
	Autoplay   bool                 `json:"autoplay"`
}

// SeekRequest seeks within the current track. Exactly one of the two fields
// is honored; progress wins when both are present.
type SeekRequest struct {
	PositionMs *int64   `json:"positionMs,omitempty"`
	Progress   *float64 `json:"progress,omitempty"`
}

// RepeatRequest sets the repeat mode
type RepeatRequest struct {
	Mode playback.RepeatMode `json:"mode" binding:"required"`
}

// MuteRequest sets the mute state
type MuteRequest struct {
	Muted bool `json:"muted"`
}

// AutoPlayRequest toggles visibility-driven video auto-play
type AutoPlayRequest struct {
	Enabled bool `json:"enabled"`
}

// QueueResponse lists the queue contents
type QueueResponse struct {
	Tracks []playback.TrackSnapshot `json:"tracks"`
}

// PlaybackHandler handles audio transport and queue requests
type PlaybackHandler struct {
	audio *playback.AudioCoordinator
}

// NewPlaybackHandler creates a playback handler
func NewPlaybackHandler(audio *playback.AudioCoordinator) *PlaybackHandler {
	return &PlaybackHandler{audio: audio}
}

// GetStatus handles GET /playback
func (h *PlaybackHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.audio.Status())
}

// GetQueue handles GET /playback/queue
func (h *PlaybackHandler) GetQueue(c *gin.Context) {
	c.JSON(http.StatusOK, QueueResponse{Tracks: h.audio.QueueTracks()})
}

// SetQueue handles POST /playback/queue
func (h *PlaybackHandler) SetQueue(c *gin.Context) {
	var req SetQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	tracks := make([]playback.Track, len(req.Tracks))
	for i, info := range req.Tracks {
		tracks[i] = playback.LocalTrack{TrackInfo: info}
	}

	h.audio.SetQueue(c.Request.Context(), tracks, req.StartIndex, req.Autoplay)
	c.JSON(http.StatusOK, h.audio.Status())
}

// AppendQueue handles POST /playback/queue/append
func (h *PlaybackHandler) AppendQueue(c *gin.Context) {
	var info playback.TrackInfo
	if err := c.ShouldBindJSON(&info); err != nil || info.ID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "a track with an id is required",
		})
		return
	}

	h.audio.Append(c.Request.Context(), playback.LocalTrack{TrackInfo: info})
	c.JSON(http.StatusOK, h.audio.Status())
}

// ClearQueue handles DELETE /playback/queue
func (h *PlaybackHandler) ClearQueue(c *gin.Context) {
	h.audio.Clear(c.Request.Context())
	c.JSON(http.StatusOK, h.audio.Status())
}

// Play handles POST /playback/play
func (h *PlaybackHandler) Play(c *gin.Context) {
	h.audio.Play(c.Request.Context())
	c.JSON(http.StatusOK, h.audio.Status())
}

// Pause handles POST /playback/pause
func (h *PlaybackHandler) Pause(c *gin.Context) {
	h.audio.Pause(c.Request.Context())
	c.JSON(http.StatusOK, h.audio.Status())
}

// Toggle handles POST /playback/toggle
func (h *PlaybackHandler) Toggle(c *gin.Context) {
	h.audio.Toggle(c.Request.Context())
	c.JSON(http.StatusOK, h.audio.Status())
}

// Next handles POST /playback/next
func (h *PlaybackHandler) Next(c *gin.Context) {
	h.audio.Next(c.Request.Context())
	c.JSON(http.StatusOK, h.audio.Status())
}

// Previous handles POST /playback/previous
func (h *PlaybackHandler) Previous(c *gin.Context) {
	h.audio.Previous(c.Request.Context())
	c.JSON(http.StatusOK, h.audio.Status())
}

// Seek handles POST /playback/seek
func (h *PlaybackHandler) Seek(c *gin.Context) {
	var req SeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	switch {
	case req.Progress != nil:
		h.audio.SeekToProgress(c.Request.Context(), *req.Progress)
	case req.PositionMs != nil:
		h.audio.Seek(c.Request.Context(), time.Duration(*req.PositionMs)*time.Millisecond)
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "either positionMs or progress is required",
		})
		return
	}
	c.JSON(http.StatusOK, h.audio.Status())
}

// ToggleShuffle handles POST /playback/shuffle
func (h *PlaybackHandler) ToggleShuffle(c *gin.Context) {
	h.audio.ToggleShuffle()
	c.JSON(http.StatusOK, h.audio.Status())
}

// SetRepeat handles POST /playback/repeat
func (h *PlaybackHandler) SetRepeat(c *gin.Context) {
	var req RepeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}
	if !req.Mode.IsValid() {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_mode",
			Message: "mode must be one of: none, all, one",
		})
		return
	}

	h.audio.SetRepeatMode(req.Mode)
	c.JSON(http.StatusOK, h.audio.Status())
}

// SetMute handles POST /playback/mute
func (h *PlaybackHandler) SetMute(c *gin.Context) {
	var req MuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	h.audio.SetMuted(req.Muted)
	c.JSON(http.StatusOK, h.audio.Status())
}

// ScrubWidthRequest reports the rendered width of the client's progress bar
type ScrubWidthRequest struct {
	Width float64 `json:"width" binding:"required"`
}

// ScrubTapRequest is a tap at x pixels along the progress bar
type ScrubTapRequest struct {
	X float64 `json:"x"`
}

// ScrubMoveRequest is one drag delta in pixels
type ScrubMoveRequest struct {
	Dx float64 `json:"dx"`
	Dy float64 `json:"dy"`
}

// ScrubStateResponse is what the client's progress indicator should render
type ScrubStateResponse struct {
	Display    float64 `json:"display"`
	IsSeeking  bool    `json:"isSeeking"`
	IsDragging bool    `json:"isDragging"`
	Target     float64 `json:"target"`
}

// ScrubHandler translates progress-bar gestures reported by the client into
// seek requests against the audio coordinator
type ScrubHandler struct {
	scrub *playback.ScrubController
	audio *playback.AudioCoordinator
}

// NewScrubHandler creates a scrub handler
func NewScrubHandler(scrub *playback.ScrubController, audio *playback.AudioCoordinator) *ScrubHandler {
	return &ScrubHandler{scrub: scrub, audio: audio}
}

// GetState handles GET /playback/scrub
func (h *ScrubHandler) GetState(c *gin.Context) {
	st := h.audio.Status()
	raw := 0.0
	if st.DurationMs > 0 {
		raw = float64(st.PositionMs) / float64(st.DurationMs)
	}
	c.JSON(http.StatusOK, ScrubStateResponse{
		Display:    h.scrub.Display(raw),
		IsSeeking:  h.scrub.IsSeeking(),
		IsDragging: h.scrub.IsDragging(),
		Target:     h.scrub.Target(),
	})
}

// SetWidth handles POST /playback/scrub/width
func (h *ScrubHandler) SetWidth(c *gin.Context) {
	var req ScrubWidthRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Width <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "width must be a positive number",
		})
		return
	}
	h.scrub.SetTrackWidth(req.Width)
	c.Status(http.StatusNoContent)
}

// Tap handles POST /playback/scrub/tap
func (h *ScrubHandler) Tap(c *gin.Context) {
	var req ScrubTapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}
	h.scrub.Tap(req.X)
	h.GetState(c)
}

// DragStart handles POST /playback/scrub/start
func (h *ScrubHandler) DragStart(c *gin.Context) {
	h.scrub.DragStart()
	h.GetState(c)
}

// DragMove handles POST /playback/scrub/move
func (h *ScrubHandler) DragMove(c *gin.Context) {
	var req ScrubMoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}
	h.scrub.DragMove(req.Dx, req.Dy)
	h.GetState(c)
}

// DragEnd handles POST /playback/scrub/end
func (h *ScrubHandler) DragEnd(c *gin.Context) {
	h.scrub.DragEnd()
	h.GetState(c)
}

// VideoHandler handles video exclusivity requests
type VideoHandler struct {
	video *playback.VideoCoordinator
}

// NewVideoHandler creates a video handler
func NewVideoHandler(video *playback.VideoCoordinator) *VideoHandler {
	return &VideoHandler{video: video}
}

// GetStates handles GET /videos
func (h *VideoHandler) GetStates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"currentlyPlaying": h.video.CurrentlyPlaying(),
		"players":          h.video.States(),
	})
}

// Play handles POST /videos/:id/play
func (h *VideoHandler) Play(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Player id is required",
		})
		return
	}

	h.video.PlayGlobally(c.Request.Context(), id)
	c.JSON(http.StatusOK, gin.H{
		"currentlyPlaying": h.video.CurrentlyPlaying(),
	})
}

// PauseAll handles POST /videos/pause-all
func (h *VideoHandler) PauseAll(c *gin.Context) {
	h.video.PauseAll(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"currentlyPlaying": "",
	})
}

// SetAutoPlay handles POST /videos/autoplay
func (h *VideoHandler) SetAutoPlay(c *gin.Context) {
	var req AutoPlayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	h.video.SetAutoPlay(req.Enabled)
	c.JSON(http.StatusOK, gin.H{"enabled": req.Enabled})
}

// SetupPlaybackRoutes registers playback, scrub, and video routes on the API group
func SetupPlaybackRoutes(apiGroup *gin.RouterGroup, audio *playback.AudioCoordinator, video *playback.VideoCoordinator, scrub *playback.ScrubController) {
	ph := NewPlaybackHandler(audio)
	sh := NewScrubHandler(scrub, audio)
	vh := NewVideoHandler(video)

	pb := apiGroup.Group("/playback")
	{
		pb.GET("", ph.GetStatus)
		pb.GET("/queue", ph.GetQueue)
		pb.POST("/queue", ph.SetQueue)
		pb.POST("/queue/append", ph.AppendQueue)
		pb.DELETE("/queue", ph.ClearQueue)
		pb.POST("/play", ph.Play)
		pb.POST("/pause", ph.Pause)
		pb.POST("/toggle", ph.Toggle)
		pb.POST("/next", ph.Next)
		pb.POST("/previous", ph.Previous)
		pb.POST("/seek", ph.Seek)
		pb.POST("/shuffle", ph.ToggleShuffle)
		pb.POST("/repeat", ph.SetRepeat)
		pb.POST("/mute", ph.SetMute)

		pb.GET("/scrub", sh.GetState)
		pb.POST("/scrub/width", sh.SetWidth)
		pb.POST("/scrub/tap", sh.Tap)
		pb.POST("/scrub/start", sh.DragStart)
		pb.POST("/scrub/move", sh.DragMove)
		pb.POST("/scrub/end", sh.DragEnd)
	}

	videos := apiGroup.Group("/videos")
	{
		videos.GET("", vh.GetStates)
		videos.POST("/:id/play", vh.Play)
		videos.POST("/pause-all", vh.PauseAll)
		videos.POST("/autoplay", vh.SetAutoPlay)
	}
}
