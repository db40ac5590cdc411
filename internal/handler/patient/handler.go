package patient

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rsyarsya/pneuscope/internal/handler"
	"github.com/rsyarsya/pneuscope/internal/middleware"
	"github.com/rsyarsya/pneuscope/internal/model"
	"github.com/rsyarsya/pneuscope/internal/service/audit"
	"github.com/rsyarsya/pneuscope/internal/service/patient"
	"github.com/rsyarsya/pneuscope/pkg/httputil"
)

type Handler struct {
	service *patient.Service
	mw      *middleware.AuthMiddleware
	auditor audit.Recorder
}

func NewHandler(service *patient.Service, mw *middleware.AuthMiddleware, auditor audit.Recorder) *Handler {
	return &Handler{service: service, mw: mw, auditor: auditor}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	manage := h.mw.Authorize(model.RoleDoctor, model.RoleAdmin)

	patients := r.Group("/patients", h.mw.Authenticate())
	{
		patients.GET("", h.ListPatients)
		patients.GET("/parent", h.mw.Authorize(model.RoleParent), h.ListChildren)
		patients.GET("/:id", middleware.AuditRead(h.auditor, model.AuditEntityPatient, "id"), h.GetPatient)
		patients.POST("", manage, h.CreatePatient)
		patients.PUT("/:id", manage, h.UpdatePatient)
		patients.DELETE("/:id", manage, h.DeletePatient)
	}
}

func (h *Handler) ListPatients(c *gin.Context) {
	patients, err := h.service.List(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{
		"patients": patients,
		"count":    len(patients),
	})
}

func (h *Handler) ListChildren(c *gin.Context) {
	children, err := h.service.Children(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{
		"patients": children,
		"count":    len(children),
	})
}

func (h *Handler) GetPatient(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	p, err := h.service.Get(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{"patient": p})
}

func (h *Handler) CreatePatient(c *gin.Context) {
	var req model.CreatePatientRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	p, err := h.service.Create(c.Request.Context(), middleware.Actor(c), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, gin.H{
		"message": "Patient created successfully",
		"patient": p,
	})
}

func (h *Handler) UpdatePatient(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.UpdatePatientRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	p, err := h.service.Update(c.Request.Context(), middleware.Actor(c), id, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{
		"message": "Patient updated successfully",
		"patient": p,
	})
}

func (h *Handler) DeletePatient(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), middleware.Actor(c), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, http.StatusOK, "Patient deleted successfully")
}
