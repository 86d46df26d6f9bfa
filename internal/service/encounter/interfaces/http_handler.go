package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"lingap/internal/pkg/logger"
	"lingap/internal/service/encounter/application"
	"lingap/internal/service/encounter/domain"
)

// HTTPHandler 暴露就诊提交的 HTTP 接口。
type HTTPHandler struct {
	app    *application.EncounterApplicationService
	tracer trace.Tracer
}

func NewHTTPHandler(app *application.EncounterApplicationService, tracer trace.Tracer) *HTTPHandler {
	return &HTTPHandler{app: app, tracer: tracer}
}

// RegisterRoutes 把路由挂到服务的 mux 上。
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/encounters", h.handleSubmit)
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *HTTPHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// 上游(API 网关)可能已经开了 trace，接着它的上下文走
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, "http.SubmitEncounter", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	var req application.SubmitEncounterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.app.SubmitEncounter(ctx, &req)
	if err != nil {
		var validation *domain.ValidationError
		if errors.As(err, &validation) {
			writeError(ctx, w, http.StatusBadRequest, validation.Error())
			return
		}
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Msg("encounter submission failed before orchestration")
		writeError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusCreated
	if resp.Outcome != string(domain.OutcomeCommitted) {
		// 已回滚的提交对调用方是一次失败的请求，但响应体里带着终局结果
		status = http.StatusConflict
	}
	writeJSON(ctx, w, status, resp)
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	writeJSON(ctx, w, status, map[string]string{"error": message})
}
