package assessment

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rsyarsya/pneuscope/internal/handler"
	"github.com/rsyarsya/pneuscope/internal/middleware"
	"github.com/rsyarsya/pneuscope/internal/model"
	"github.com/rsyarsya/pneuscope/internal/service/assessment"
	"github.com/rsyarsya/pneuscope/internal/service/audit"
	"github.com/rsyarsya/pneuscope/pkg/httputil"
)

type Handler struct {
	service *assessment.Service
	mw      *middleware.AuthMiddleware
	auditor audit.Recorder
}

func NewHandler(service *assessment.Service, mw *middleware.AuthMiddleware, auditor audit.Recorder) *Handler {
	return &Handler{service: service, mw: mw, auditor: auditor}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/predict", h.mw.Authenticate(), h.mw.Authorize(model.RoleDoctor, model.RoleAdmin), h.Predict)
	r.GET("/assessments/patient/:patientId",
		h.mw.Authenticate(),
		middleware.AuditRead(h.auditor, model.AuditEntityAssessment, "patientId"),
		h.History,
	)
}

func (h *Handler) Predict(c *gin.Context) {
	var req model.PredictRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	res, err := h.service.Predict(c.Request.Context(), middleware.Actor(c), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	body := gin.H{
		"risk_score": res.RiskScore,
		"source":     res.Source,
		"high_risk":  res.HighRisk,
		"assessment": res.Assessment,
	}
	if res.Confidence != nil {
		body["confidence"] = *res.Confidence
	}
	httputil.RespondWithSuccess(c, http.StatusOK, body)
}

func (h *Handler) History(c *gin.Context) {
	patientID, ok := handler.ParamID(c, "patientId")
	if !ok {
		return
	}

	records, err := h.service.History(c.Request.Context(), middleware.Actor(c), patientID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{
		"assessments": records,
		"count":       len(records),
	})
}
