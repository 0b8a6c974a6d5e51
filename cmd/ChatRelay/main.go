package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpServer "ChatRelay/api/http"
	"ChatRelay/internal/config"
	"ChatRelay/internal/initial"
	"ChatRelay/internal/modules/relay/application/service"
	"ChatRelay/internal/modules/relay/infrastructure/catalog"
	"ChatRelay/internal/modules/relay/infrastructure/llm"
	"ChatRelay/internal/modules/relay/infrastructure/persistence"
	"ChatRelay/internal/modules/relay/infrastructure/retry"
	relayHandler "ChatRelay/internal/modules/relay/interface/http"
	"ChatRelay/pkg/redis"
	"ChatRelay/pkg/util/myjwt"
	"ChatRelay/pkg/ws"
	"ChatRelay/pkg/zlog"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	conf := config.GetConfig()
	zlog.Init(zlog.Options{Level: conf.LogConfig.Level, LogPath: conf.LogConfig.LogPath})
	defer zlog.Sync()

	if err := conf.Validate(); err != nil {
		zlog.Fatal("配置校验失败", zap.Error(err))
	}

	// 2. 存储与可选的 Redis
	db, err := initial.OpenDB(conf)
	if err != nil {
		zlog.Fatal("数据库初始化失败", zap.Error(err))
	}
	store := persistence.NewStore(db)
	redisReady := initial.InitRedis(conf)

	// 3. 上游与模型目录
	ctx := context.Background()
	chatModel, meta, err := llm.NewChatModelFromConfig(ctx, conf)
	if err != nil {
		zlog.Fatal("上游模型初始化失败", zap.Error(err))
	}
	zlog.Info("upstream ready", zap.String("provider", meta.Provider), zap.String("model", meta.Model), zap.String("base_url", meta.BaseURL))

	relayConf := conf.RelayConfig
	upstream := llm.NewUpstream(chatModel,
		retry.Policy{MaxRetries: relayConf.MaxRetries, BaseDelay: relayConf.RetryBaseDelay(), Name: "chat completion"},
		relayConf.UpstreamTimeout())

	cacheOpts := []catalog.Option{
		catalog.WithRetryPolicy(retry.Policy{MaxRetries: relayConf.MaxRetries, BaseDelay: relayConf.RetryBaseDelay(), Name: "list models"}),
	}
	if redisReady {
		cacheOpts = append(cacheOpts, catalog.WithSnapshot(catalog.NewRedisSnapshot(conf.MainConfig.AppName)))
	}
	models := catalog.NewCache(
		llm.NewOpenAIModelLister(conf.AIConfig.ChatModel.APIKey, conf.AIConfig.ChatModel.BaseURL),
		relayConf.ModelCacheTTL(),
		cacheOpts...)

	// 4. 应用服务
	settings := service.SettingsFromConfig(conf)
	titler := service.NewAutoTitler(upstream, store, settings.DefaultModel, settings.TitleMaxTokens, settings.TitleTimeout)
	locks := service.NewSessionLocks()
	dispatcher := service.NewDispatcher(relayConf.IsUserAllowed,
		service.NewConversationService(store, upstream, titler, locks, settings),
		service.NewSessionService(store, models, settings),
		service.NewImageService(store, upstream, titler, locks, settings))

	var signer *myjwt.Signer
	if conf.JwtConfig.Key != "" {
		issuer := conf.JwtConfig.Issuer
		if issuer == "" {
			issuer = conf.MainConfig.AppName
		}
		if signer, err = myjwt.NewSigner(conf.JwtConfig.Key, issuer, conf.JwtConfig.ExpireHours); err != nil {
			zlog.Fatal("jwt 初始化失败", zap.Error(err))
		}
	} else {
		zlog.Warn("JWT_KEY 未配置，桥接接口不做鉴权")
	}

	hub := ws.NewHub()
	router := httpServer.NewRouter(httpServer.Deps{
		Conf:   conf,
		Relay:  relayHandler.NewRelayHandler(dispatcher, models, hub, relayHandler.NewPhotoProbe(10*time.Second), settings.ModelsPerPage),
		Ws:     relayHandler.NewWsHandler(hub, signer, relayConf.IsUserAllowed),
		Signer: signer,
		Health: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	})

	// 5. 启动 HTTP 服务
	addr := fmt.Sprintf("%s:%d", conf.MainConfig.Host, conf.MainConfig.Port)
	srv := &http.Server{Addr: addr, Handler: router}
	go func() {
		zlog.Info("服务器正在启动", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("服务器启动失败", zap.Error(err))
		}
	}()

	// 6. 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("正在关闭服务器...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("HTTP 关闭失败", zap.Error(err))
	}

	// 等待后台标题任务结束后再关闭存储
	titler.Wait()
	if err := store.Close(); err != nil {
		zlog.Error("数据库关闭失败", zap.Error(err))
	}
	_ = redis.Close()
	zlog.Info("服务器已关闭")
}
