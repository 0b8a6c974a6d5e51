package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"ChatRelay/internal/config"

	arkModel "github.com/cloudwego/eino-ext/components/model/ark"
	openaiModel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

type ChatModelMeta struct {
	Provider string
	Model    string
	BaseURL  string
}

// NewChatModelFromConfig 按 provider 创建 eino ChatModel；
// 具体模型在每次调用时通过 model.WithModel 覆盖，这里的 Model 只是默认值
func NewChatModelFromConfig(ctx context.Context, conf *config.Config) (model.BaseChatModel, ChatModelMeta, error) {
	if conf == nil {
		return nil, ChatModelMeta{}, fmt.Errorf("nil config")
	}

	cm := conf.AIConfig.ChatModel
	provider := strings.ToLower(strings.TrimSpace(cm.Provider))
	modelName := strings.TrimSpace(cm.Model)
	baseURL := strings.TrimSpace(cm.BaseURL)

	timeout := 2 * time.Minute
	if cm.TimeoutSeconds > 0 {
		timeout = time.Duration(cm.TimeoutSeconds) * time.Second
	}

	switch provider {
	case "", "openai":
		apiKey := strings.TrimSpace(cm.APIKey)
		if apiKey == "" {
			apiKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		}
		if apiKey == "" || modelName == "" {
			return nil, ChatModelMeta{}, fmt.Errorf("openai chat model missing apiKey/model")
		}

		chatModel, err := openaiModel.NewChatModel(ctx, &openaiModel.ChatModelConfig{
			APIKey:     apiKey,
			Model:      modelName,
			BaseURL:    baseURL,
			ByAzure:    cm.ByAzure,
			APIVersion: strings.TrimSpace(cm.AzureAPIVersion),
			Timeout:    timeout,
		})
		if err != nil {
			return nil, ChatModelMeta{}, err
		}
		return chatModel, ChatModelMeta{Provider: "openai", Model: modelName, BaseURL: baseURL}, nil

	case "ark":
		apiKey := strings.TrimSpace(cm.APIKey)
		accessKey := strings.TrimSpace(cm.AccessKey)
		secretKey := strings.TrimSpace(cm.SecretKey)
		if apiKey == "" {
			apiKey = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
		}
		if accessKey == "" {
			accessKey = strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY"))
		}
		if secretKey == "" {
			secretKey = strings.TrimSpace(os.Getenv("ARK_SECRET_KEY"))
		}
		if apiKey == "" && (accessKey == "" || secretKey == "") {
			return nil, ChatModelMeta{}, fmt.Errorf("ark chat model missing apiKey or accessKey/secretKey")
		}
		if modelName == "" {
			return nil, ChatModelMeta{}, fmt.Errorf("ark chat model missing model")
		}

		// 重试交给 retry.Policy，SDK 内部不再重试
		retryTimes := 0
		if cm.RetryTimes > 0 {
			retryTimes = cm.RetryTimes
		}

		chatModel, err := arkModel.NewChatModel(ctx, &arkModel.ChatModelConfig{
			APIKey:     apiKey,
			AccessKey:  accessKey,
			SecretKey:  secretKey,
			Model:      modelName,
			BaseURL:    baseURL,
			Region:     strings.TrimSpace(cm.Region),
			Timeout:    &timeout,
			RetryTimes: &retryTimes,
		})
		if err != nil {
			return nil, ChatModelMeta{}, err
		}
		return chatModel, ChatModelMeta{Provider: "ark", Model: modelName, BaseURL: baseURL}, nil

	default:
		return nil, ChatModelMeta{}, fmt.Errorf("unknown chat model provider: %s", provider)
	}
}
