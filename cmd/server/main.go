// Package main runs the telecare device service: call lifecycle, telemetry,
// chat, reading store, and the UI WebSocket stream, with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vitalink/telecare/config"
	"github.com/vitalink/telecare/internal/auth"
	"github.com/vitalink/telecare/internal/chat"
	"github.com/vitalink/telecare/internal/consultations"
	"github.com/vitalink/telecare/internal/middleware"
	"github.com/vitalink/telecare/internal/models"
	"github.com/vitalink/telecare/internal/readings"
	"github.com/vitalink/telecare/internal/realtime"
	"github.com/vitalink/telecare/internal/rtc"
	"github.com/vitalink/telecare/internal/session"
	syncjobs "github.com/vitalink/telecare/internal/sync"
	"github.com/vitalink/telecare/internal/vitals"
	"github.com/vitalink/telecare/pkg/database"
	"github.com/vitalink/telecare/pkg/queue"
	"github.com/vitalink/telecare/pkg/redis"
	"github.com/vitalink/telecare/pkg/response"
	"github.com/vitalink/telecare/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			MediaBucket:          cfg.AWS.MediaBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Readings
	readingRepo := readings.NewRepository(pool)
	readingHandler := readings.NewHandler(readingRepo, s3Client, logger)

	// Consultation history
	consultRepo := consultations.NewRepository(pool)
	consultHandler := consultations.NewHandler(consultRepo, logger)

	// Chat over the messaging gateway
	usernames := map[models.Role]string{
		models.RolePatient: cfg.Chat.PatientUsername,
		models.RoleDoctor:  cfg.Chat.DoctorUsername,
	}
	messenger := chat.NewWSMessenger(cfg.Chat.GatewayURL, logger)
	chatCoord := chat.NewCoordinator(messenger, usernames, nil, logger)
	defer chatCoord.Close()

	// Call session: engine, token minting, single-writer coordinator
	engine := rtc.NewEngine(cfg.RTC.SignalingURL, cfg.RTC.ICEUrls, logger)
	minter := rtc.NewTokenMinter(cfg.RTC.AppID, cfg.RTC.ServerSecret, cfg.RTC.StaticToken, 0)
	sessionCoord := session.New(session.Options{
		Configured: cfg.RTC.Configured(),
		ChannelID:  cfg.RTC.ChannelID,
		Usernames:  usernames,
	}, engine, chatCoord, minter, logger)
	sessionHandler := session.NewHandler(sessionCoord)
	chatHandler := chat.NewHandler(chatCoord, sessionCoord.Role)

	// Telemetry device
	simulator := vitals.NewSimulator(time.Duration(cfg.Telemetry.SampleIntervalMS)*time.Millisecond, logger)
	defer simulator.Stop()
	feed := vitals.NewFeed(simulator.Readings())
	defer feed.Close()
	vitalsHandler := vitals.NewHandler(simulator, feed, sessionCoord)

	// Sync queue
	jobQueue := queue.NewQueue(rdb.Client, logger)
	syncHandler := syncjobs.NewHandler(readingRepo, jobQueue, logger)

	// Consultation history recording follows the device user when set; a
	// fixed device identity works for single-profile installs.
	if deviceUser := os.Getenv("DEVICE_USER_ID"); deviceUser != "" {
		if id, err := uuid.Parse(deviceUser); err == nil {
			sessionCoord.SetRecorder(consultations.NewRecorder(consultRepo, id, logger))
		} else {
			logger.Warn("invalid DEVICE_USER_ID, consultation history disabled", zap.String("value", deviceUser))
		}
	}

	// UI event stream
	bridge := realtime.NewBridge(hub, cfg.RTC.ChannelID, sessionCoord, chatCoord, feed, logger)
	sessionCoord.SetNotifier(bridge)
	chatCoord.SetNotifier(bridge)
	sessionCoord.Open()
	defer sessionCoord.Close()
	bridge.Start()
	defer bridge.Close()

	jwtValidate := func(token string) (userID, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.UserID.String(), claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/doctors", authHandler.ListDoctors)

		sessionHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)

		// Sensor control belongs to the patient-side device; doctors only view.
		api.GET("/device", vitalsHandler.Status)
		api.POST("/device/start", middleware.RequireRole("patient", "admin"), vitalsHandler.Start)
		api.POST("/device/stop", middleware.RequireRole("patient", "admin"), vitalsHandler.Stop)
		api.GET("/device/latest", vitalsHandler.Latest)
		api.GET("/device/shared", vitalsHandler.SharedSample)

		readingHandler.RegisterRoutes(api)
		consultHandler.RegisterRoutes(api)
		syncHandler.RegisterRoutes(api)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtValidate, realtime.Commands{
		SendChat:     func(content string) { chatCoord.SendMessage(sessionCoord.Role(), content) },
		ToggleAudio:  sessionCoord.ToggleAudio,
		ToggleVideo:  sessionCoord.ToggleVideo,
		SwitchCamera: sessionCoord.SwitchCamera,
		ToggleVitals: sessionCoord.ToggleVitalsSharing,
		EndCall:      sessionCoord.EndCall,
		CurrentState: func() interface{} { return sessionCoord.Snapshot() },
	}))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
