package llm

import (
	"context"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIModelLister 通过 OpenAI 兼容的 /models 接口列出模型
type OpenAIModelLister struct {
	client openai.Client
}

func NewOpenAIModelLister(apiKey, baseURL string) *OpenAIModelLister {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIModelLister{client: openai.NewClient(opts...)}
}

func (l *OpenAIModelLister) ListModels(ctx context.Context) ([]string, error) {
	page, err := l.client.Models.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}
