package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungtweek/mockllm/internal/logger"
	"github.com/yungtweek/mockllm/internal/mock"
	"github.com/yungtweek/mockllm/internal/provider"
)

func (s *Server) handleChat(adapter provider.Adapter) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		stream := false
		status := http.StatusOK
		defer func() {
			s.metrics.ObserveRequest(adapter.Name(), stream, status, time.Since(start))
		}()

		var body map[string]any
		if err := json.NewDecoder(c.Request.Body).Decode(&body); err != nil {
			status = http.StatusUnprocessableEntity
			c.JSON(status, validationDetail(&provider.ValidationError{Err: errors.New("invalid JSON body: " + err.Error())}))
			return
		}
		req, err := provider.ParseRequest(body)
		if err != nil {
			status = http.StatusUnprocessableEntity
			c.JSON(status, validationDetail(err))
			return
		}
		stream = req.Stream

		logger.Log.Infow("[http] chat request",
			"protocol", adapter.Name(),
			"model", req.Model,
			"message_count", len(req.Messages),
			"stream", req.Stream,
		)

		if !req.HasUserMessage() {
			status = http.StatusInternalServerError
			c.JSON(status, internalError(&provider.ValidationError{Err: provider.ErrNoUserMessage}))
			return
		}

		ctx := c.Request.Context()
		res, err := s.engine.Resolve(ctx, lowerHeaders(c.Request), body)
		if err != nil {
			kind := mock.ErrorKind(err)
			s.metrics.ResolutionError(kind)
			logger.Log.Errorw("[engine] resolve failed", "protocol", adapter.Name(), "kind", kind, "err", err)
			status = http.StatusInternalServerError
			c.JSON(status, internalError(err))
			return
		}

		if !req.Stream {
			if err := s.engine.Wait(ctx, res); err != nil {
				// client went away during the simulated delay
				status = 499
				c.Abort()
				return
			}
			c.JSON(status, adapter.Render(res.Payload, req))
			return
		}

		h := c.Writer.Header()
		h.Set("Content-Type", "text/event-stream; charset=utf-8")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		c.Status(status)

		frames := adapter.Stream(res.Payload, s.engine.Chunks(ctx, res), req)
		n, err := provider.WriteFrames(c.Writer, c.Writer.Flush, frames)
		s.metrics.StreamFrames(adapter.Name(), n)
		if err != nil {
			logger.Log.Warnw("[http] stream aborted", "protocol", adapter.Name(), "frames", n, "err", err)
		}
	}
}
