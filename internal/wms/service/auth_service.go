package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pragavigithub/IT-Lobby-20250909/internal/config"
	"github.com/pragavigithub/IT-Lobby-20250909/internal/wms/entity"
	"github.com/pragavigithub/IT-Lobby-20250909/internal/wms/repository"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// AuthService 登录认证服务
type AuthService struct {
	userRepo *repository.UserRepository
	rdb      *redis.Client
	cfg      *config.Config
}

func NewAuthService(userRepo *repository.UserRepository, rdb *redis.Client, cfg *config.Config) *AuthService {
	return &AuthService{userRepo: userRepo, rdb: rdb, cfg: cfg}
}

// TokenPair 访问令牌对
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login 用户名密码登录
func (s *AuthService) Login(ctx context.Context, username, password string) (*TokenPair, *entity.User, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	if !user.Active {
		return nil, nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.generateTokenPair(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

// generateTokenPair 生成Token对
func (s *AuthService) generateTokenPair(ctx context.Context, user *entity.User) (*TokenPair, error) {
	now := time.Now()

	accessClaims := jwt.MapClaims{
		"sub":       fmt.Sprintf("%d", user.ID),
		"uid":       user.ID,
		"username":  user.Username,
		"email":     user.Email,
		"role":      user.Role,
		"branch_id": user.BranchID,
		"iss":       s.cfg.JWT.Issuer,
		"iat":       now.Unix(),
		"exp":       now.Add(s.cfg.JWT.AccessTokenExpire).Unix(),
		"jti":       uuid.New().String(),
	}
	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims)
	accessTokenString, err := accessToken.SignedString([]byte(s.cfg.JWT.Secret))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshJti := uuid.New().String()
	refreshClaims := jwt.MapClaims{
		"sub":  fmt.Sprintf("%d", user.ID),
		"uid":  user.ID,
		"type": "refresh",
		"iss":  s.cfg.JWT.Issuer,
		"iat":  now.Unix(),
		"exp":  now.Add(s.cfg.JWT.RefreshTokenExpire).Unix(),
		"jti":  refreshJti,
	}
	refreshToken := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims)
	refreshTokenString, err := refreshToken.SignedString([]byte(s.cfg.JWT.Secret))
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	// Refresh Token jti登记到Redis，刷新时校验
	if s.rdb != nil {
		s.rdb.Set(ctx, "token:refresh:"+refreshJti, user.ID, s.cfg.JWT.RefreshTokenExpire)
	}

	return &TokenPair{
		AccessToken:  accessTokenString,
		RefreshToken: refreshTokenString,
		ExpiresIn:    int64(s.cfg.JWT.AccessTokenExpire.Seconds()),
	}, nil
}

// RefreshToken 用refresh token换新token对
func (s *AuthService) RefreshToken(ctx context.Context, refreshTokenString string) (*TokenPair, error) {
	token, err := jwt.Parse(refreshTokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWT.Secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims["type"] != "refresh" {
		return nil, fmt.Errorf("invalid token type")
	}

	if s.rdb != nil {
		jti, _ := claims["jti"].(string)
		userID, err := s.rdb.Get(ctx, "token:refresh:"+jti).Result()
		if err != nil || userID == "" {
			return nil, fmt.Errorf("refresh token revoked")
		}
		// 旧refresh token一次性使用
		s.rdb.Del(ctx, "token:refresh:"+jti)
	}

	uid, ok := claims["uid"].(float64)
	if !ok {
		return nil, fmt.Errorf("invalid token subject")
	}

	user, err := s.userRepo.FindByID(ctx, uint(uid))
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	return s.generateTokenPair(ctx, user)
}

// CreateUserRequest 创建用户请求
type CreateUserRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Role       string `json:"role"`
	BranchID   string `json:"branch_id"`
	BranchName string `json:"branch_name"`
}

// CreateUser 创建用户（仅admin可调用，路由层用RequireRole把关）
func (s *AuthService) CreateUser(ctx context.Context, req CreateUserRequest) (*entity.User, error) {
	if req.Username == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	switch req.Role {
	case "":
		req.Role = entity.RoleUser
	case entity.RoleAdmin, entity.RoleManager, entity.RoleUser:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, req.Role)
	}

	if _, err := s.userRepo.FindByUsername(ctx, req.Username); err == nil {
		return nil, fmt.Errorf("%w: username %s already taken", ErrInvalidInput, req.Username)
	} else if err != repository.ErrNotFound {
		return nil, err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := &entity.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         req.Role,
		BranchID:     req.BranchID,
		BranchName:   req.BranchName,
		Active:       true,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser 按ID获取用户
func (s *AuthService) GetUser(ctx context.Context, id uint) (*entity.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
		}
		return nil, err
	}
	return user, nil
}

// HashPassword bcrypt哈希密码（种子和用户创建用）
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
