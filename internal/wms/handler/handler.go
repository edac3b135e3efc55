package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pragavigithub/IT-Lobby-20250909/internal/wms/service"
)

// Handlers WMS handler集合
type Handlers struct {
	Auth    *AuthHandler
	Invoice *InvoiceHandler
}

// NewHandlers 创建handler集合
func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{
		Auth:    NewAuthHandler(services.Auth),
		Invoice: NewInvoiceHandler(services.Invoice),
	}
}

// OK 成功响应，在payload基础上附加success标记
func OK(c *gin.Context, payload gin.H) {
	if payload == nil {
		payload = gin.H{}
	}
	payload["success"] = true
	c.JSON(http.StatusOK, payload)
}

// Fail 失败响应
func Fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg})
}

// FailErr 按业务错误映射HTTP状态码
func FailErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrNoLineItems):
		Fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		Fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrForbidden):
		Fail(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrDocumentPosted):
		Fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		Fail(c, http.StatusUnauthorized, err.Error())
	default:
		Fail(c, http.StatusInternalServerError, err.Error())
	}
}

// GetUserID 从JWT中间件注入的上下文取当前用户ID
func GetUserID(c *gin.Context) uint {
	if v, ok := c.Get("user_id"); ok {
		if id, ok := v.(uint); ok {
			return id
		}
	}
	return 0
}

// GetUsername 取当前用户名
func GetUsername(c *gin.Context) string {
	if v, ok := c.Get("username"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetRole 取当前用户角色
func GetRole(c *gin.Context) string {
	if v, ok := c.Get("role"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetPagination 解析分页参数
func GetPagination(c *gin.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "10"))
	return page, perPage
}

// ParseUintParam 解析路径参数为uint
func ParseUintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		Fail(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return uint(v), true
}
