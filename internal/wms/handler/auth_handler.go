package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pragavigithub/IT-Lobby-20250909/internal/wms/entity"
	"github.com/pragavigithub/IT-Lobby-20250909/internal/wms/service"
)

// AuthHandler 认证接口
type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest 刷新token请求
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func userPayload(u *entity.User) gin.H {
	return gin.H{
		"id":          u.ID,
		"username":    u.Username,
		"email":       u.Email,
		"first_name":  u.FirstName,
		"last_name":   u.LastName,
		"role":        u.Role,
		"branch_id":   u.BranchID,
		"branch_name": u.BranchName,
	}
}

// Login POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "username and password are required")
		return
	}

	pair, user, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		FailErr(c, err)
		return
	}

	OK(c, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_in":    pair.ExpiresIn,
		"user":          userPayload(user),
	})
}

// Refresh POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "refresh_token is required")
		return
	}

	pair, err := h.authService.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		Fail(c, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	OK(c, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_in":    pair.ExpiresIn,
	})
}

// CreateUser POST /api/v1/users（admin专用）
func (h *AuthHandler) CreateUser(c *gin.Context) {
	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.authService.CreateUser(c.Request.Context(), req)
	if err != nil {
		FailErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "user": userPayload(user)})
}

// Me GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.authService.GetUser(c.Request.Context(), GetUserID(c))
	if err != nil {
		FailErr(c, err)
		return
	}
	OK(c, gin.H{"user": userPayload(user)})
}
