package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"healthhub/internal/adapter"
	"healthhub/internal/adapter/apple"
	"healthhub/internal/adapter/garmin"
	"healthhub/internal/adapter/huawei"
	"healthhub/internal/config"
	"healthhub/internal/domain"
	httpapi "healthhub/internal/http"
	"healthhub/internal/repository"
	"healthhub/internal/secrets"
	"healthhub/internal/service"
	"healthhub/pkg/database"
	"healthhub/pkg/logger"
	"healthhub/pkg/redisutil"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "healthhub")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := secrets.Init(cfg.Secrets.AppSecret); err != nil {
		log.Fatal("Failed to initialize credential encryption", zap.Error(err))
	}

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	redisClient := redisutil.NewRedisClient(&cfg.Redis)
	defer redisutil.Close(redisClient)
	if err := redisutil.Ping(context.Background(), redisClient); err != nil {
		log.Warn("Redis not reachable, oauth flow and sync events degraded", zap.Error(err))
	}

	credRepo := repository.NewPostgresCredentialRepository(db, log)
	recordRepo := repository.NewPostgresHealthRecordRepository(db, log)

	// 令牌刷新轮换后重新加密落库
	saverFactory := func(cred *domain.DeviceCredential) huawei.TokenSaver {
		credID := cred.ID
		return func(ctx context.Context, secret *domain.OAuthSecret) error {
			plaintext, err := domain.EncodeSecret(domain.AuthOAuth2, &domain.SecretPayload{OAuth: secret})
			if err != nil {
				return err
			}
			encrypted, err := secrets.Encrypt(plaintext)
			if err != nil {
				return err
			}
			return credRepo.UpdateSecret(ctx, credID, encrypted)
		}
	}

	registry := adapter.NewRegistry()
	registry.Register(domain.DeviceGarmin, domain.AuthPassword, garmin.NewConstructor(&cfg.Vendor))
	registry.Register(domain.DeviceHuawei, domain.AuthOAuth2, huawei.NewConstructor(&cfg.Vendor, saverFactory))
	registry.Register(domain.DeviceApple, domain.AuthFile, apple.NewConstructor())

	events := service.NewSyncEventPublisher(redisClient, cfg.Sync.EventStream, log)
	manager := service.NewDeviceManager(registry, credRepo, recordRepo, events, cfg.Sync, log)
	oauthSvc := service.NewOAuthService(service.NewOAuthStateStore(redisClient), credRepo, &cfg.Vendor, log)
	exportSvc := service.NewExportService(recordRepo)

	handler := httpapi.NewDeviceHandler(manager, oauthSvc, exportSvc, log)
	router := httpapi.NewRouter(log)
	router.RegisterDeviceRoutes(handler)

	srv := service.NewServer(cfg.Server.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("HTTP server exited", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop HTTP server cleanly", zap.Error(err))
	}
}
