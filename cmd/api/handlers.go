package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/onboardly/application-pdf/internal/assembly"
	"github.com/onboardly/application-pdf/internal/auth"
	"github.com/onboardly/application-pdf/internal/jobs"
	"github.com/onboardly/application-pdf/internal/onboarding"
	"github.com/onboardly/application-pdf/internal/status"
)

type jobEnqueuer interface {
	Enqueue(ctx context.Context, req assembly.Request) (string, error)
}

type server struct {
	auth    *auth.Manager
	jobs    jobEnqueuer
	status  status.Store
	logger  zerolog.Logger
	nowFunc func() time.Time
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// setupRoutes はヘルスチェックとジョブAPIを登録します。
func setupRoutes(router *gin.Engine, s *server) {
	router.GET("/health", handleHealth)

	api := router.Group("/api")
	{
		api.POST("/onboardings/:id/application-pdf", s.auth.RequireAPIKey(), s.enqueueApplicationPDF)
		api.GET("/jobs/:id", s.jobStatus)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "application-pdf-api",
		"version": "0.1.0",
	})
}

// enqueueRequest の jobId は任意です。クライアントが指定すると再送しても同じジョブになります。
type enqueueRequest struct {
	JobID      string  `json:"jobId"`
	Subsidiary string  `json:"subsidiary" binding:"required"`
	Filename   *string `json:"filename"`
}

func (s *server) enqueueApplicationPDF(c *gin.Context) {
	onboardingID := strings.TrimSpace(c.Param("id"))
	var body enqueueRequest
	if err := c.ShouldBindJSON(&body); err != nil || onboardingID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "subsidiary を JSON で送ってください",
		})
		return
	}

	jobID := strings.TrimSpace(body.JobID)
	if jobID == "" {
		jobID = uuid.NewString()
	} else if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "jobId は UUID で指定してください。",
		})
		return
	}

	req := assembly.Request{
		JobID:        jobID,
		RequestedAt:  s.nowFunc(),
		OnboardingID: onboardingID,
		Subsidiary:   onboarding.Subsidiary(strings.ToUpper(strings.TrimSpace(body.Subsidiary))),
		Filename:     body.Filename,
	}
	_, err := s.jobs.Enqueue(c.Request.Context(), req)
	if errors.Is(err, jobs.ErrDuplicateJob) {
		s.logger.Info().Str("job_id", jobID).Msg("job already enqueued")
		err = nil
	}
	if err != nil {
		s.logger.Error().Err(err).Str("onboarding_id", onboardingID).Msg("failed to enqueue job")
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "ENQUEUE_FAILED",
			"message": "ジョブの投入に失敗しました。",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"jobId": req.JobID})
}

func (s *server) jobStatus(c *gin.Context) {
	jobID := strings.TrimSpace(c.Param("id"))
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "jobId を指定してください。",
		})
		return
	}

	record, err := status.Lookup(c.Request.Context(), s.status, jobID)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to read job status")
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "ジョブ情報の取得に失敗しました。",
		})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "JOB_NOT_FOUND",
			"message": "指定されたジョブは存在しません。",
		})
		return
	}

	c.JSON(http.StatusOK, record)
}
