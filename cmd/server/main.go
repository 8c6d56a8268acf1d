package main

import (
	"context"

	"gantry/internal/common"
	"gantry/internal/server/channel"
	"gantry/internal/server/dao"
	"gantry/internal/server/engine"
	"gantry/internal/server/executor"
	"gantry/internal/server/handler"
	"gantry/internal/server/middleware"
	"gantry/internal/server/model"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func main() {
	common.InitConf()
	common.InitLog()
	config := common.GetConfig()
	logger := common.GetLogger()
	defer logger.Sync()

	if err := dao.Init(config); err != nil {
		logger.Fatal("init database", zap.Error(err))
	}
	if err := ensureAdminUser(config, logger); err != nil {
		logger.Fatal("bootstrap admin user", zap.Error(err))
	}

	ch, err := buildChannel(config)
	if err != nil {
		logger.Fatal("init remote session channel", zap.Error(err))
	}

	exec := executor.New(ch, logger, config.CommandTimeout, config.RecoveryTimeout)
	eng := engine.New(exec, logger)
	handler.Init(eng, exec, ch)

	// Self-healing: periodically fail running tasks nobody is driving.
	reaper := cron.New()
	if _, err := reaper.AddFunc("@every 1m", func() {
		exec.ReapStale(context.Background())
	}); err != nil {
		logger.Fatal("schedule recovery sweep", zap.Error(err))
	}
	reaper.Start()
	defer reaper.Stop()

	if config.AppEnv != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/login", handler.UserLogin)

	authed := r.Group("/", middleware.JWTAuthMiddleware())
	authed.GET("/pipelines", handler.ListPipelines)
	authed.GET("/pipelines/:id", handler.GetPipeline)
	authed.GET("/tasks/:taskId/events", handler.ListTaskEvents)
	authed.GET("/dashboard", handler.Dashboard)

	operator := authed.Group("/", middleware.RequireOperator())
	operator.POST("/pipelines", handler.CreatePipeline)
	operator.DELETE("/pipelines/:id", handler.DeletePipeline)
	operator.POST("/pipelines/:id/steps/:stepId/gate", handler.HandleGate)
	operator.POST("/tasks/:taskId/cancel", handler.CancelTask)
	operator.POST("/environments/:env/agent-token", handler.SeedAgentToken)

	logger.Info("gantry server listening", zap.String("addr", config.ListenAddr))
	if config.CertPath != "" && config.KeyPath != "" {
		err = r.RunTLS(config.ListenAddr, config.CertPath, config.KeyPath)
	} else {
		err = r.Run(config.ListenAddr)
	}
	if err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

// ensureAdminUser creates the operator account from ADMIN_USER and
// ADMIN_PASSWORD on first boot. Without it there is no way to log in
// to a fresh install.
func ensureAdminUser(config common.Config, logger *zap.Logger) error {
	if config.AdminPassword == "" {
		logger.Warn("ADMIN_PASSWORD not set, skipping admin bootstrap")
		return nil
	}
	userDao := dao.NewUserDao()
	ctx := context.Background()
	if _, err := userDao.GetByUsername(ctx, config.AdminUser); err == nil {
		return nil
	} else if err != gorm.ErrRecordNotFound {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(config.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	logger.Info("creating admin user", zap.String("username", config.AdminUser))
	return userDao.Create(ctx, &model.User{
		Username:     config.AdminUser,
		PasswordHash: string(hash),
		Role:         model.RoleOperator,
	})
}

func buildChannel(config common.Config) (channel.Channel, error) {
	if config.ChannelKind == "docker" {
		return channel.NewDockerChannel()
	}
	return channel.NewSSHChannel(config.SSHUser, config.SSHKeyPath)
}
