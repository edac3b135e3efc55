package service

import (
	"errors"

	"github.com/pragavigithub/IT-Lobby-20250909/internal/config"
	"github.com/pragavigithub/IT-Lobby-20250909/internal/sap"
	"github.com/pragavigithub/IT-Lobby-20250909/internal/wms/repository"
	"github.com/redis/go-redis/v9"
)

// 业务错误 — handler据此映射HTTP状态码
var (
	// ErrInvalidInput 客户端输入错误，不触发远端调用和持久化
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound 远端正常响应但无匹配记录（区别于连接失败）
	ErrNotFound = errors.New("not found")
	// ErrDocumentPosted 已过账单据拒绝再次保存明细
	ErrDocumentPosted = errors.New("document already posted")
	// ErrNoLineItems 无行项单据拒绝过账
	ErrNoLineItems = errors.New("cannot post invoice without line items")
	// ErrInvalidCredentials 登录失败
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrForbidden 访问他人单据被拒绝
	ErrForbidden = errors.New("access denied")
)

// Services WMS服务集合
type Services struct {
	Auth    *AuthService
	Invoice *InvoiceService
}

// NewServices 创建WMS服务集合
func NewServices(repos *repository.Repositories, rdb *redis.Client, sapClient *sap.Client, cfg *config.Config) *Services {
	return &Services{
		Auth:    NewAuthService(repos.User, rdb, cfg),
		Invoice: NewInvoiceService(repos, sapClient, cfg.SAP.OfflineFallback),
	}
}
