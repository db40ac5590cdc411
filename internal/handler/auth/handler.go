package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rsyarsya/pneuscope/internal/handler"
	"github.com/rsyarsya/pneuscope/internal/middleware"
	"github.com/rsyarsya/pneuscope/internal/model"
	"github.com/rsyarsya/pneuscope/internal/service/auth"
	"github.com/rsyarsya/pneuscope/pkg/httputil"
)

type Handler struct {
	svc    *auth.Service
	mw     *middleware.AuthMiddleware
	secure bool
}

// NewHandler builds the auth endpoints. secure marks the session cookie
// Secure and should be set in production.
func NewHandler(svc *auth.Service, mw *middleware.AuthMiddleware, secure bool) *Handler {
	return &Handler{svc: svc, mw: mw, secure: secure}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/logout", h.Logout)
		auth.GET("/verify", h.mw.Authenticate(), h.Verify)
		auth.GET("/me", h.mw.Authenticate(), h.Profile)
		auth.GET("/profile", h.mw.Authenticate(), h.Profile)
		auth.PUT("/profile", h.mw.Authenticate(), h.UpdateProfile)
	}
}

func (h *Handler) setCookie(c *gin.Context, token string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.mw.CookieName(),
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	user, err := h.svc.Register(c.Request.Context(), req, middleware.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user":    user,
	})
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	result, err := h.svc.Login(c.Request.Context(), req, middleware.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	h.setCookie(c, result.Token, int(result.ExpiresIn))
	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{
		"message":   "Login successful",
		"user":      result.User,
		"token":     result.Token,
		"expiresIn": result.ExpiresIn,
	})
}

// Logout always clears the cookie. A still-valid token is revoked too.
func (h *Handler) Logout(c *gin.Context) {
	token := h.mw.Token(c)
	h.setCookie(c, "", -1)

	if err := h.svc.Logout(c.Request.Context(), token, middleware.Actor(c)); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, http.StatusOK, "Logged out successfully")
}

func (h *Handler) Verify(c *gin.Context) {
	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{
		"user": middleware.CurrentUser(c),
	})
}

func (h *Handler) Profile(c *gin.Context) {
	user, err := h.svc.Me(c.Request.Context(), middleware.Actor(c).UserID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{"user": user})
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var req model.UpdateProfileRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	user, err := h.svc.UpdateProfile(c.Request.Context(), middleware.Actor(c), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{
		"message": "Profile updated successfully",
		"user":    user,
	})
}
