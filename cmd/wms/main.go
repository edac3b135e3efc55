package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/pragavigithub/IT-Lobby-20250909/internal/config"
	"github.com/pragavigithub/IT-Lobby-20250909/internal/middleware"
	"github.com/pragavigithub/IT-Lobby-20250909/internal/sap"
	"github.com/pragavigithub/IT-Lobby-20250909/internal/wms/entity"
	"github.com/pragavigithub/IT-Lobby-20250909/internal/wms/handler"
	"github.com/pragavigithub/IT-Lobby-20250909/internal/wms/repository"
	"github.com/pragavigithub/IT-Lobby-20250909/internal/wms/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting wms service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("db_driver", cfg.Database.Driver),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// 迁移与种子数据
	runMigrations(db, cfg.Database, zapLogger)
	seedDefaults(db, zapLogger)

	// 初始化Redis（会话存储与refresh token登记，连不上时降级为无状态）
	rdb := initRedis(cfg.Redis)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		zapLogger.Warn("Redis unavailable, falling back to in-process sessions", zap.Error(err))
		rdb = nil
	}

	// SAP B1 Service Layer客户端
	var sessionStore sap.SessionStore
	if rdb != nil {
		sessionStore = sap.NewRedisSessionStore(rdb)
	}
	sapClient := sap.NewClient(sap.Config{
		BaseURL:       cfg.SAP.BaseURL,
		Username:      cfg.SAP.Username,
		Password:      cfg.SAP.Password,
		CompanyDB:     cfg.SAP.CompanyDB,
		SkipTLSVerify: cfg.SAP.SkipTLSVerify,
		LookupTimeout: cfg.SAP.LookupTimeout,
		PostTimeout:   cfg.SAP.PostTimeout,
	}, sessionStore)

	// 依赖装配
	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, rdb, sapClient, cfg)
	handlers := handler.NewHandlers(services)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	registerRoutes(router, handlers, cfg)

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	var dialector gorm.Dialector
	if cfg.Driver == "postgres" {
		dialector = postgres.Open(cfg.DSN())
	} else {
		dialector = mysql.Open(cfg.DSN())
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// runMigrations 执行Schema迁移：AutoMigrate建表，增量列改动先查
// information_schema再ALTER，保证任意中间版本的库上重复执行都安全
func runMigrations(db *gorm.DB, cfg config.DatabaseConfig, zapLogger *zap.Logger) {
	if err := db.AutoMigrate(
		&entity.User{},
		&entity.SoInvoiceDocument{},
		&entity.SoInvoiceLine{},
		&entity.SoInvoiceSerial{},
		&entity.SoSeries{},
		&entity.DocumentNumberSeries{},
	); err != nil {
		zapLogger.Warn("AutoMigrate warning", zap.Error(err))
	}

	// 历史版本增量列（老库升级路径，新建库AutoMigrate已覆盖）
	type columnMigration struct {
		table, column, ddl string
	}
	migrations := []columnMigration{
		{"so_invoice_documents", "so_doc_entry", "ALTER TABLE so_invoice_documents ADD COLUMN so_doc_entry BIGINT DEFAULT 0"},
		{"so_invoice_documents", "customer_address", "ALTER TABLE so_invoice_documents ADD COLUMN customer_address VARCHAR(512) DEFAULT ''"},
		{"so_invoice_documents", "posting_error", "ALTER TABLE so_invoice_documents ADD COLUMN posting_error TEXT"},
		{"so_invoice_documents", "sap_invoice_number", "ALTER TABLE so_invoice_documents ADD COLUMN sap_invoice_number VARCHAR(50) DEFAULT ''"},
		{"so_invoice_lines", "validated_quantity", "ALTER TABLE so_invoice_lines ADD COLUMN validated_quantity DECIMAL(15,4) DEFAULT 0"},
		{"so_invoice_serials", "base_line_number", "ALTER TABLE so_invoice_serials ADD COLUMN base_line_number INT DEFAULT 0"},
		{"users", "must_change_password", "ALTER TABLE users ADD COLUMN must_change_password BOOLEAN DEFAULT false"},
		{"users", "branch_name", "ALTER TABLE users ADD COLUMN branch_name VARCHAR(100) DEFAULT ''"},
	}
	for _, m := range migrations {
		if columnExists(db, cfg, m.table, m.column) {
			continue
		}
		if err := db.Exec(m.ddl).Error; err != nil {
			zapLogger.Warn("column migration warning",
				zap.String("table", m.table), zap.String("column", m.column), zap.Error(err))
		}
	}

	zapLogger.Info("Database migration completed")
}

// columnExists 通过information_schema探测列是否存在，mysql/postgres通用
func columnExists(db *gorm.DB, cfg config.DatabaseConfig, table, column string) bool {
	var count int64
	query := `SELECT COUNT(*) FROM information_schema.columns
		WHERE table_name = ? AND column_name = ?`
	args := []interface{}{table, column}
	if cfg.Driver == "postgres" {
		query += ` AND table_schema = current_schema()`
	} else {
		query += ` AND table_schema = ?`
		args = append(args, cfg.DBName)
	}
	if err := db.Raw(query, args...).Scan(&count).Error; err != nil {
		return false
	}
	return count > 0
}

// seedDefaults 幂等种子数据：单据号计数器和默认admin账号
func seedDefaults(db *gorm.DB, zapLogger *zap.Logger) {
	// SO Against Invoice单据号计数器
	var counter entity.DocumentNumberSeries
	err := db.Where("code = ?", entity.SeriesCodeSOInvoice).First(&counter).Error
	if err == gorm.ErrRecordNotFound {
		counter = entity.DocumentNumberSeries{
			Code:       entity.SeriesCodeSOInvoice,
			Prefix:     "SOINV",
			NextNumber: 1,
		}
		if err := db.Create(&counter).Error; err != nil {
			zapLogger.Warn("seed document number series warning", zap.Error(err))
		}
	}

	// 默认admin（仅空库时创建，上线后应立即改密）
	var userCount int64
	db.Model(&entity.User{}).Count(&userCount)
	if userCount == 0 {
		hash, err := service.HashPassword("admin123")
		if err != nil {
			zapLogger.Warn("seed admin user warning", zap.Error(err))
			return
		}
		admin := entity.User{
			Username:           "admin",
			Email:              "admin@wms.local",
			PasswordHash:       hash,
			FirstName:          "System",
			LastName:           "Admin",
			Role:               entity.RoleAdmin,
			BranchID:           "BR001",
			BranchName:         "Main Branch",
			Active:             true,
			MustChangePassword: true,
		}
		if err := db.Create(&admin).Error; err != nil {
			zapLogger.Warn("seed admin user warning", zap.Error(err))
		} else {
			zapLogger.Info("Seeded default admin user", zap.String("username", admin.Username))
		}
	}
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	api := r.Group("/api/v1")

	// 公开接口
	auth := api.Group("/auth")
	{
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
	}

	// 认证接口
	authed := api.Group("")
	authed.Use(middleware.JWTAuth(cfg.JWT.Secret))
	{
		authed.GET("/auth/me", h.Auth.Me)

		// 用户管理，仅admin
		users := authed.Group("/users", middleware.RequireRole())
		{
			users.POST("", h.Auth.CreateUser)
		}

		inv := authed.Group("/so-invoices")
		{
			inv.GET("", h.Invoice.List)
			inv.POST("", h.Invoice.Create)
			inv.GET("/export", h.Invoice.Export)
			inv.GET("/series", h.Invoice.ListSeries)
			inv.POST("/validate-so", h.Invoice.ValidateSO)
			inv.POST("/fetch-so", h.Invoice.FetchSO)
			inv.POST("/validate-item", h.Invoice.ValidateItem)
			inv.GET("/:id", h.Invoice.Get)
			inv.POST("/:id/details", h.Invoice.SaveDetails)
			inv.PUT("/:id/lines/:lineId", h.Invoice.UpdateLine)
			inv.POST("/:id/post", h.Invoice.Post)
		}
	}
}
