package handler

import (
	"net/http"
	"strconv"

	"ChatRelay/pkg/util/myjwt"
	"ChatRelay/pkg/ws"
	"ChatRelay/pkg/zlog"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WsHandler 投递操作的实时推送通道
type WsHandler struct {
	hub     *ws.Hub
	signer  *myjwt.Signer
	allowed func(userID int64) bool
}

func NewWsHandler(hub *ws.Hub, signer *myjwt.Signer, allowed func(userID int64) bool) *WsHandler {
	if allowed == nil {
		allowed = func(int64) bool { return true }
	}
	return &WsHandler{hub: hub, signer: signer, allowed: allowed}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Connect GET /wss?user_id=..&token=..
// 浏览器 WebSocket 无法自定义 Header，token 放在查询参数里，这里手动校验
func (h *WsHandler) Connect(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	if h.signer != nil {
		claims, err := h.signer.ParseToken(c.Query("token"))
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		if id, _ := claims.UserID(); id != userID {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
	}
	if !h.allowed(userID) {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zlog.Warn("ws upgrade failed", zap.Int64("user_id", userID), zap.Error(err))
		return
	}

	client := ws.NewClient(userID, conn)
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	go client.WritePump()
	client.ReadPump()
}
