package handler

import (
	"context"

	"hydra-signals/internal/domain"
	"hydra-signals/internal/job"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

type SignalLister interface {
	ListSignals(ctx context.Context, filter domain.SignalFilter) ([]domain.Signal, error)
}

type ErrorLister interface {
	Recent(ctx context.Context, limit int) ([]domain.ErrorEntry, error)
}

type CycleRunner interface {
	RunManual(ctx context.Context) (job.CycleResult, error)
	Status() job.Status
}

type Handler struct {
	tracer  trace.Tracer
	signals SignalLister
	errors  ErrorLister
	runner  CycleRunner
}

func New(tracer trace.Tracer, signals SignalLister, errors ErrorLister, runner CycleRunner) *Handler {
	return &Handler{
		tracer:  tracer,
		signals: signals,
		errors:  errors,
		runner:  runner,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/api/status", h.GetStatus)
	r.GET("/api/signals", h.GetSignals)
	r.GET("/api/errors", h.GetErrors)
	r.POST("/api/run", h.RunCycle)
}
