package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/flowline/linepool/internal/infrastructure/workerpool"
	"github.com/flowline/linepool/pkg/jsonx"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := jsonx.ParseStrictJSONBody(c.Request, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if req.Username != s.cfg.AdminUsername || req.Password != s.cfg.AdminPassword {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	session := sessions.Default(c)
	session.Set("uid", req.Username)
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session save failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"uid": req.Username})
}

func (s *Server) handleLogout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	_ = session.Save()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleWhoAmI(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"uid": c.GetString("uid")})
}

type submitRequest struct {
	Index   int    `json:"index"`
	Payload []byte `json:"payload" binding:"required"`
}

func (s *Server) handleSubmit(c *gin.Context) {
	var req submitRequest
	if err := jsonx.ParseStrictJSONBody(c.Request, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	ctx, cancel := contextWithTimeout(c, s.cfg.SubmitTimeout)
	defer cancel()

	result, err := s.pool.Submit(ctx, req.Index, req.Payload)
	if err != nil {
		writeExecError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", result)
}

type batchItem struct {
	Index   int    `json:"index"`
	Payload []byte `json:"payload" binding:"required"`
}

type batchRequest struct {
	Items       []batchItem `json:"items" binding:"required"`
	Concurrency int         `json:"concurrency"`
}

type batchResultDTO struct {
	Payload []byte `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleSubmitBatch(c *gin.Context) {
	var req batchRequest
	if err := jsonx.ParseStrictJSONBody(c.Request, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	items := make([]workerpool.BatchItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = workerpool.BatchItem{Index: it.Index, Payload: it.Payload}
	}

	ctx, cancel := contextWithTimeout(c, s.cfg.SubmitTimeout)
	defer cancel()

	results := s.pool.SubmitBatch(ctx, items, req.Concurrency)
	out := make([]batchResultDTO, len(results))
	for i, r := range results {
		if r.Err != nil {
			out[i] = batchResultDTO{Error: r.Err.Error()}
			continue
		}
		out[i] = batchResultDTO{Payload: r.Payload}
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}

func (s *Server) handleProcessInfo(c *gin.Context) {
	index, err := indexParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	info, err := s.pool.ProcessInfo(index)
	if err != nil {
		writeExecError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleLogs(c *gin.Context) {
	index, err := indexParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n := s.cfg.DefaultLogTail
	if raw := c.Query("n"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			n = parsed
		}
	}
	lines, ok := s.pool.Logs(index, n)
	c.JSON(http.StatusOK, gin.H{"lines": lines, "found": ok})
}

func (s *Server) handleRestart(c *gin.Context) {
	index, err := indexParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.pool.Restart(index)
	c.Status(http.StatusAccepted)
}

func (s *Server) handleNewProcess(c *gin.Context) {
	index, err := indexParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.pool.NewWorker(index)
	c.Status(http.StatusAccepted)
}

func (s *Server) handleEndProcess(c *gin.Context) {
	index, err := indexParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.pool.EndWorker(index)
	c.Status(http.StatusAccepted)
}

func indexParam(c *gin.Context) (int, error) {
	return strconv.Atoi(c.Param("index"))
}

func contextWithTimeout(c *gin.Context, d time.Duration) (context.Context, func()) {
	if d <= 0 {
		return c.Request.Context(), func() {}
	}
	return context.WithTimeout(c.Request.Context(), d)
}

func writeExecError(c *gin.Context, err error) {
	if jse, ok := err.(*workerpool.JsonSerializedException); ok {
		if workerpool.IsNotFoundClass(jse.Code) {
			c.JSON(http.StatusNotFound, jse)
			return
		}
		c.JSON(http.StatusInternalServerError, jse)
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
