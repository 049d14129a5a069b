package gateway

import (
	"errors"
	"io"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"lumora/model"
)

const copyBufferSize = 32 << 10

func (s *Server) handleChat(c *gin.Context) {
	ctx := c.Request.Context()

	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Messages == nil {
		s.log.WarnContext(ctx, "rejected chat request", "err", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	modelName := s.selectModel(req.Model)
	s.log.InfoContext(ctx, "chat request", "messages", len(req.Messages), "model", modelName)

	messages, err := buildMessages(s.cfg.SystemPrompt, req.Messages)
	if err != nil {
		s.log.WarnContext(ctx, "rejected chat request", "err", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	resp, err := s.upstream.Stream(ctx, modelName, messages)
	if err != nil {
		if errors.Is(err, ErrNoUpstreamKey) {
			s.log.ErrorContext(ctx, "upstream not configured", "err", err)
		} else {
			s.log.ErrorContext(ctx, "upstream error", "err", err)
		}
		status, msg := upstreamStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	defer resp.Body.Close()

	s.log.DebugContext(ctx, "streaming response from upstream")
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	n, err := relay(c.Writer, resp.Body)
	if err != nil && ctx.Err() == nil {
		s.log.WarnContext(ctx, "stream interrupted", "bytes", n, "err", err)
		return
	}
	s.log.DebugContext(ctx, "stream finished", "bytes", n)
}

// selectModel returns requested when it is allowed, the default otherwise.
func (s *Server) selectModel(requested string) string {
	if requested != "" && slices.Contains(s.cfg.AllowedModels, requested) {
		return requested
	}
	return s.cfg.DefaultModel
}

// relay copies src to w unchanged, flushing after every read so events reach
// the client as soon as the upstream produces them.
func relay(w gin.ResponseWriter, src io.Reader) (int64, error) {
	buf := make([]byte, copyBufferSize)
	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			written, werr := w.Write(buf[:n])
			total += int64(written)
			if werr != nil {
				return total, werr
			}
			w.Flush()
		}
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}
