package runtime

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
)

// HTTPHandler exposes the interpreter to its host surface: session
// lifecycle, message log reads, user input, agent feedback, and the
// completion callback used by the external streaming writer.
type HTTPHandler struct {
	cfg  Config
	l    *slog.Logger
	defs DefinitionSource
	gen  Generator

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewHTTPHandler registers the session API on the gin engine.
func NewHTTPHandler(cfg Config, l *slog.Logger, defs DefinitionSource, gen Generator, g *gin.Engine) *HTTPHandler {
	h := &HTTPHandler{
		cfg:      cfg,
		l:        l,
		defs:     defs,
		gen:      gen,
		sessions: make(map[string]*Session),
	}

	g.POST("/sessions", h.createSession)
	g.GET("/sessions/:id", h.getSession)
	g.DELETE("/sessions/:id", h.deleteSession)
	g.GET("/sessions/:id/messages", h.getMessages)
	g.POST("/sessions/:id/input", h.postInput)
	g.POST("/sessions/:id/feedback", h.postFeedback)
	g.POST("/completions/:requestID", h.postCompletion)

	return h
}

type createSessionRequest struct {
	Workflow string `json:"workflow" binding:"required"`
}

func (h *HTTPHandler) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Wrong request body format"})
		return
	}

	s := NewSession(h.cfg, h.l, h.defs, h.gen)
	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()

	s.Start(req.Workflow)
	h.l.Info("session created", "session", s.ID, "workflow", req.Workflow)
	c.JSON(http.StatusCreated, gin.H{"session_id": s.ID})
}

func (h *HTTPHandler) session(c *gin.Context) (*Session, bool) {
	h.mu.Lock()
	s, ok := h.sessions[c.Param("id")]
	h.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Session not found"})
		return nil, false
	}
	return s, true
}

func (h *HTTPHandler) getSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	text, file := s.InputModes()
	resp := gin.H{
		"session_id":   s.ID,
		"current_step": s.CurrentStep(),
		"loading":      s.IsLoading(),
		"text_input":   text,
		"file_input":   file,
		"snapshot":     s.Snapshot(),
	}
	if err := s.Err(); err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) deleteSession(c *gin.Context) {
	h.mu.Lock()
	s, ok := h.sessions[c.Param("id")]
	delete(h.sessions, c.Param("id"))
	h.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Session not found"})
		return
	}
	s.Close()
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

func (h *HTTPHandler) getMessages(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": s.Messages()})
}

type inputRequest struct {
	Text  string   `json:"text"`
	Files []string `json:"files"`
}

func (h *HTTPHandler) postInput(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req inputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Wrong request body format"})
		return
	}
	s.HandleUserInput(req.Text, req.Files)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

type feedbackRequest struct {
	Feedback string `json:"feedback" binding:"required"`
}

func (h *HTTPHandler) postFeedback(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Wrong request body format"})
		return
	}
	if !s.AwaitingFeedback() {
		c.JSON(http.StatusConflict, gin.H{"message": "Session is not awaiting feedback"})
		return
	}
	s.HandleAgentFeedback(req.Feedback)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

type completionRequest struct {
	Text          string `json:"text"`
	GeneratedText string `json:"generated_text"`
	S3URL         string `json:"s3_url"`
}

// postCompletion lets the part of the system that receives streaming
// completion events publish the final value, keyed by the request id
// established when the generation was started.
func (h *HTTPHandler) postCompletion(c *gin.Context) {
	var req completionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Wrong request body format"})
		return
	}

	out := Output{}
	if req.Text != "" {
		out["text"] = req.Text
	}
	if req.GeneratedText != "" {
		out["generated_text"] = req.GeneratedText
	} else if req.Text != "" {
		out["generated_text"] = req.Text
	}
	if req.S3URL != "" {
		out["s3_url"] = req.S3URL
	}

	requestID := c.Param("requestID")
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		if s.ResolveCompletion(requestID, out) {
			c.JSON(http.StatusOK, gin.H{"status": "resolved"})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"message": "Unknown request id"})
}
