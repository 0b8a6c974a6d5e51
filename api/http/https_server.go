package http

import (
	"context"

	"ChatRelay/internal/config"
	jwtMiddleware "ChatRelay/internal/middleware/jwt"
	relayHandler "ChatRelay/internal/modules/relay/interface/http"
	"ChatRelay/pkg/back"
	"ChatRelay/pkg/redis"
	"ChatRelay/pkg/ssl"
	"ChatRelay/pkg/util/myjwt"
	"ChatRelay/pkg/xerr"

	cors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Deps 路由所需的处理器；Signer 为 nil 时桥接接口不做鉴权（仅用于内网部署）
type Deps struct {
	Conf   *config.Config
	Relay  *relayHandler.RelayHandler
	Ws     *relayHandler.WsHandler
	Signer *myjwt.Signer
	Health func(ctx context.Context) error
}

func NewRouter(d Deps) *gin.Engine {
	GE := gin.New()
	GE.Use(gin.Logger(), gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	GE.Use(cors.New(corsConfig))
	if d.Conf != nil && d.Conf.MainConfig.ForceTLS {
		GE.Use(ssl.TlsHandler(d.Conf.MainConfig.Host, d.Conf.MainConfig.Port))
	}

	GE.GET("/healthz", func(c *gin.Context) {
		if d.Health != nil {
			if err := d.Health(c.Request.Context()); err != nil {
				back.Error(c, xerr.InternalServerError, "storage unavailable")
				return
			}
		}
		back.Success(c, gin.H{"status": "ok", "redis": redis.IsConnected()})
	})
	GE.GET("/wss", d.Ws.Connect)

	relay := GE.Group("/relay")
	if d.Signer != nil {
		relay.Use(jwtMiddleware.Auth(d.Signer))
	}
	relay.POST("/message", d.Relay.Message)
	relay.POST("/command", d.Relay.Command)
	relay.POST("/callback", d.Relay.Callback)
	relay.GET("/models", d.Relay.Models)

	return GE
}
