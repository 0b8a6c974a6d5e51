package service

import (
	"context"
	"time"

	"ChatRelay/internal/config"
	"ChatRelay/internal/modules/relay/infrastructure/llm"

	"github.com/cloudwego/eino/schema"
)

// Completer 上游补全（由 llm.Upstream 实现）
type Completer interface {
	Complete(ctx context.Context, model string, msgs []*schema.Message, opts ...llm.CallOption) (string, error)
}

// ModelCatalog 模型列表（由 catalog.Cache 实现）
type ModelCatalog interface {
	Models(ctx context.Context) []string
}

// Settings 对话引擎参数
type Settings struct {
	DefaultModel       string
	ImageModel         string
	MaxContextMessages int
	MaxMessageLength   int
	MaxImages          int
	ModelsPerPage      int
	HistoryLimit       int
	ReplayLimit        int
	TitleMaxTokens     int
	ErrorTextLimit     int
	TitleTimeout       time.Duration
}

func SettingsFromConfig(conf *config.Config) Settings {
	r := conf.RelayConfig
	return Settings{
		DefaultModel:       conf.AIConfig.ChatModel.Model,
		ImageModel:         conf.AIConfig.ImageModel,
		MaxContextMessages: r.MaxContextMessages,
		MaxMessageLength:   r.MaxMessageLength,
		MaxImages:          r.MaxImages,
		ModelsPerPage:      r.ModelsPerPage,
		HistoryLimit:       r.HistoryLimit,
		ReplayLimit:        r.ReplayLimit,
		TitleMaxTokens:     r.TitleMaxTokens,
		ErrorTextLimit:     r.ErrorTextLimit,
		TitleTimeout:       r.UpstreamTimeout(),
	}
}

func (s Settings) withDefaults() Settings {
	d := SettingsFromConfig(config.Default())
	if s.DefaultModel == "" {
		s.DefaultModel = d.DefaultModel
	}
	if s.ImageModel == "" {
		s.ImageModel = d.ImageModel
	}
	if s.MaxContextMessages <= 0 {
		s.MaxContextMessages = d.MaxContextMessages
	}
	if s.MaxMessageLength <= 0 {
		s.MaxMessageLength = d.MaxMessageLength
	}
	if s.MaxImages <= 0 {
		s.MaxImages = d.MaxImages
	}
	if s.ModelsPerPage <= 0 {
		s.ModelsPerPage = d.ModelsPerPage
	}
	if s.HistoryLimit <= 0 {
		s.HistoryLimit = d.HistoryLimit
	}
	if s.ReplayLimit <= 0 {
		s.ReplayLimit = d.ReplayLimit
	}
	if s.TitleMaxTokens <= 0 {
		s.TitleMaxTokens = d.TitleMaxTokens
	}
	if s.ErrorTextLimit <= 0 {
		s.ErrorTextLimit = d.ErrorTextLimit
	}
	if s.TitleTimeout <= 0 {
		s.TitleTimeout = d.TitleTimeout
	}
	return s
}
