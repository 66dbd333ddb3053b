package expertbot

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/higress-group/expertbot/common/logger"
	"github.com/higress-group/expertbot/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// QueryRequest is the body of POST /expert_bot/.
type QueryRequest struct {
	Query string `json:"query" binding:"required"`
	Alias string `json:"alias" binding:"required"`
}

// AnswerResponse is the body of a successful reply.
type AnswerResponse struct {
	Answer     string `json:"answer"`
	AnswerText string `json:"answer_text"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Asker answers a user message.
type Asker interface {
	Ask(ctx context.Context, query, alias string) (string, error)
}

type clientAsker struct{ c *ExpertClient }

func (a clientAsker) Ask(ctx context.Context, query, alias string) (string, error) {
	reply, err := a.c.Ask(ctx, query, alias)
	if err != nil {
		return "", err
	}
	return reply.Answer, nil
}

// NewRouter builds the gin engine serving the expert bot endpoints.
func NewRouter(c *ExpertClient, log *logger.Logger) *gin.Engine {
	r := newRouter(clientAsker{c}, c.IsNoAnswer, log)
	if c.Config().App.EnableMCP {
		mcpHandler := NewStreamableHTTPHandler(NewMCPServer(c))
		r.Any("/mcp", gin.WrapH(mcpHandler))
	}
	return r
}

func newRouter(asker Asker, noAnswer func(string) bool, log *logger.Logger) *gin.Engine {
	log = log.Named("http")
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": Version})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/expert_bot/", handleExpertBot(asker, noAnswer, log))
	return r
}

func handleExpertBot(asker Asker, noAnswer func(string) bool, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond(c, http.StatusUnprocessableEntity, errorResponse{Detail: err.Error()})
			return
		}
		text, err := asker.Ask(c.Request.Context(), req.Query, req.Alias)
		if err != nil {
			if errors.Is(err, ErrEmptyQuery) {
				respond(c, http.StatusUnprocessableEntity, errorResponse{Detail: err.Error()})
				return
			}
			log.Errorf("answer query failed: %v", err)
			respond(c, http.StatusInternalServerError, errorResponse{Detail: "Failed to produce an answer"})
			return
		}
		if noAnswer(text) {
			respond(c, http.StatusNotFound, errorResponse{Detail: "No answer found"})
			return
		}
		respond(c, http.StatusOK, AnswerResponse{Answer: text, AnswerText: text})
	}
}

func respond(c *gin.Context, status int, body any) {
	metrics.IncRequest("http", status)
	c.JSON(status, body)
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Infof("%s %s status=%d latency=%s client_ip=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start), c.ClientIP())
	}
}
