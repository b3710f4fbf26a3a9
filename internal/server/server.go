// Package server exposes the mock engine over the OpenAI and Anthropic HTTP
// APIs.
package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungtweek/mockllm/internal/logger"
	"github.com/yungtweek/mockllm/internal/metrics"
	"github.com/yungtweek/mockllm/internal/mock"
	"github.com/yungtweek/mockllm/internal/provider"
)

// Server routes chat requests to the protocol adapters.
type Server struct {
	engine    *mock.Engine
	metrics   *metrics.Collector
	openai    provider.Adapter
	anthropic provider.Adapter
	router    *gin.Engine
}

func New(eng *mock.Engine, m *metrics.Collector) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:    eng,
		metrics:   m,
		openai:    provider.NewOpenAI(eng.Estimator()),
		anthropic: provider.NewAnthropic(eng.Estimator()),
		router:    gin.New(),
	}
	s.router.Use(requestLog(), gin.CustomRecovery(recoverToDetail))
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := s.router.Group("/v1")
	{
		v1.POST("/chat/completions", s.handleChat(s.openai))
		v1.POST("/messages", s.handleChat(s.anthropic))
	}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(c *gin.Context) {
	h := gin.H{
		"status":  "healthy",
		"service": "mockllm",
		"mode":    s.engine.Mode(),
	}
	if n := s.engine.TableSize(); n >= 0 {
		h["responses"] = n
	}
	c.JSON(http.StatusOK, h)
}

// requestLog writes one zap line per request.
func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Log.Infow("[http] request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

func recoverToDetail(c *gin.Context, err any) {
	logger.Log.Errorw("[http] panic", "path", c.FullPath(), "err", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
}

// lowerHeaders flattens request headers the way resolvers expect them:
// lower-cased names, repeated values joined with ", ".
func lowerHeaders(r *http.Request) map[string]string {
	out := make(map[string]string, len(r.Header)+1)
	for k, vs := range r.Header {
		out[strings.ToLower(k)] = strings.Join(vs, ", ")
	}
	if r.Host != "" {
		out["host"] = r.Host
	}
	return out
}

// validationDetail mimics the 422 body FastAPI produces for invalid requests.
func validationDetail(err error) gin.H {
	loc := []string{"body"}
	var ve *provider.ValidationError
	if errors.As(err, &ve) && ve.Field != "" {
		loc = append(loc, strings.Split(ve.Field, ".")...)
	}
	return gin.H{"detail": []gin.H{{
		"loc":  loc,
		"msg":  err.Error(),
		"type": "value_error",
	}}}
}

func internalError(err error) gin.H {
	return gin.H{"detail": "Internal server error: " + err.Error()}
}
