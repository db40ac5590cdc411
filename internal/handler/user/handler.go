// Package user serves the admin endpoints for doctor accounts.
package user

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rsyarsya/pneuscope/internal/handler"
	"github.com/rsyarsya/pneuscope/internal/middleware"
	"github.com/rsyarsya/pneuscope/internal/model"
	"github.com/rsyarsya/pneuscope/internal/service/user"
	"github.com/rsyarsya/pneuscope/pkg/httputil"
)

type Handler struct {
	service *user.Service
	mw      *middleware.AuthMiddleware
}

func NewHandler(service *user.Service, mw *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, mw: mw}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	admin := r.Group("/admin", h.mw.Authenticate(), h.mw.Authorize(model.RoleAdmin))
	{
		admin.GET("/doctors", h.ListDoctors)
		admin.GET("/doctors/:id", h.GetDoctor)
		admin.PATCH("/doctors/:id/status", h.UpdateDoctorStatus)
		admin.GET("/hospitals/stats", h.HospitalStats)
	}
}

func (h *Handler) ListDoctors(c *gin.Context) {
	var filter model.DoctorFilter
	if !handler.BindQuery(c, &filter) {
		return
	}

	page, err := h.service.ListDoctors(c.Request.Context(), filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{
		"doctors":       page.Doctors,
		"pagination":    page.Pagination,
		"hospitalStats": page.HospitalStats,
	})
}

func (h *Handler) GetDoctor(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	doctor, err := h.service.GetDoctor(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{"doctor": doctor})
}

func (h *Handler) UpdateDoctorStatus(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.UpdateDoctorStatusRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	doctor, err := h.service.SetDoctorStatus(c.Request.Context(), middleware.Actor(c), id, *req.IsActive)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	message := "Doctor deactivated successfully"
	if doctor.IsActive {
		message = "Doctor activated successfully"
	}
	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{
		"message": message,
		"doctor":  doctor,
	})
}

func (h *Handler) HospitalStats(c *gin.Context) {
	report, err := h.service.HospitalReport(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{
		"summary":   report.Summary,
		"hospitals": report.Hospitals,
	})
}
