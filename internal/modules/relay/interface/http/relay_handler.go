package handler

import (
	"encoding/base64"
	"strconv"
	"strings"

	"ChatRelay/internal/modules/relay/application/dto/request"
	"ChatRelay/internal/modules/relay/application/dto/respond"
	"ChatRelay/internal/modules/relay/application/service"
	"ChatRelay/internal/modules/relay/domain/transport"
	"ChatRelay/pkg/back"
	"ChatRelay/pkg/util"
	"ChatRelay/pkg/ws"
	"ChatRelay/pkg/xerr"
	"ChatRelay/pkg/zlog"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RelayHandler struct {
	dispatcher    *service.Dispatcher
	catalog       service.ModelCatalog
	hub           *ws.Hub
	probe         PhotoProbe
	modelsPerPage int
}

func NewRelayHandler(dispatcher *service.Dispatcher, catalog service.ModelCatalog, hub *ws.Hub, probe PhotoProbe, modelsPerPage int) *RelayHandler {
	return &RelayHandler{
		dispatcher:    dispatcher,
		catalog:       catalog,
		hub:           hub,
		probe:         probe,
		modelsPerPage: modelsPerPage,
	}
}

// resolveUser token 中的用户优先；请求体里的 user_id 必须与之一致
func resolveUser(c *gin.Context, bodyID int64) (int64, error) {
	uuid := c.GetString("uuid")
	if uuid == "" {
		if bodyID <= 0 {
			return 0, xerr.ErrParam
		}
		return bodyID, nil
	}

	id, err := strconv.ParseInt(uuid, 10, 64)
	if err != nil {
		return 0, xerr.New(xerr.Unauthorized, "invalid token")
	}
	if bodyID != 0 && bodyID != id {
		return 0, xerr.New(xerr.Forbidden, "user_id 不匹配")
	}
	return id, nil
}

func displayName(c *gin.Context, bodyName string) string {
	if name := strings.TrimSpace(bodyName); name != "" {
		return name
	}
	return c.GetString("username")
}

func (h *RelayHandler) reply(c *gin.Context, r *transcriptReplier, err error) {
	if err != nil {
		back.Result(c, nil, err)
		return
	}
	back.Success(c, respond.RelayRespond{
		RequestId: util.GenerateUUID(),
		Ops:       r.Ops(),
	})
}

func (h *RelayHandler) Message(c *gin.Context) {
	var req request.MessageRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	userID, err := resolveUser(c, req.UserId)
	if err != nil {
		back.Result(c, nil, err)
		return
	}

	ev := transport.Event{
		UserID:      userID,
		DisplayName: displayName(c, req.DisplayName),
		Text:        req.Text,
		Caption:     req.Caption,
	}
	if req.PhotoBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(req.PhotoBase64)
		if err != nil || len(data) == 0 {
			back.Error(c, xerr.BadRequest, "photo_base64 无法解码")
			return
		}
		ev.PhotoData = data
	}

	r := newTranscriptReplier(userID, h.hub, h.probe)
	err = h.dispatcher.HandleMessage(c.Request.Context(), ev, r)
	h.reply(c, r, err)
}

func (h *RelayHandler) Command(c *gin.Context) {
	var req request.CommandRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	userID, err := resolveUser(c, req.UserId)
	if err != nil {
		back.Result(c, nil, err)
		return
	}

	ev := transport.Event{UserID: userID, DisplayName: displayName(c, req.DisplayName), Text: req.Args}
	r := newTranscriptReplier(userID, h.hub, h.probe)
	err = h.dispatcher.HandleCommand(c.Request.Context(), req.Command, ev, r)
	h.reply(c, r, err)
}

func (h *RelayHandler) Callback(c *gin.Context) {
	var req request.CallbackRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	userID, err := resolveUser(c, req.UserId)
	if err != nil {
		back.Result(c, nil, err)
		return
	}

	ev := transport.Event{
		UserID:      userID,
		DisplayName: displayName(c, req.DisplayName),
		MessageRef:  transport.MessageRef(req.MessageRef),
	}
	r := newTranscriptReplier(userID, h.hub, h.probe)
	err = h.dispatcher.HandleCallback(c.Request.Context(), req.Data, ev, r)
	h.reply(c, r, err)
}

// Models ?page= 从 0 开始，越界时收敛到边界
func (h *RelayHandler) Models(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))

	models := h.catalog.Models(c.Request.Context())
	items, page, total := service.ModelPage(models, page, h.modelsPerPage)
	if items == nil {
		items = []string{}
	}
	zlog.Debug("models listed", zap.Int("total", len(models)), zap.Int("page", page))

	back.Success(c, respond.ModelListRespond{
		Models:    items,
		Page:      page,
		TotalPage: total,
		Total:     len(models),
	})
}
