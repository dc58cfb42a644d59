package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"golang.org/x/time/rate"

	"github.com/jinford/cookbook-catalog/internal/core/ingestion"
)

const (
	// DefaultModel はデフォルトで使用するOpenAIモデル（画像入力対応）
	DefaultModel = "gpt-4o-mini"

	// DefaultTimeout は1ページあたりのAPI呼び出しのデフォルトタイムアウト
	DefaultTimeout = 60 * time.Second

	// MaxRetries はレート制限エラー時の最大リトライ回数
	MaxRetries = 3

	// BaseBackoff はExponential Backoffの基底時間
	BaseBackoff = 2 * time.Second

	// MaxBackoff はExponential Backoffの最大待機時間
	MaxBackoff = 32 * time.Second
)

// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
var ErrAPIKeyNotSet = errors.New("OpenAI API key not set: please set OPENAI_API_KEY environment variable")

const extractionPrompt = "You are an OCR and information extraction assistant. " +
	"You will be given a single cookbook index page as an embedded base64 image data URL. " +
	"Extract a list of recipes with their ingredient keyword and page number. " +
	"Respond ONLY with strict JSON using this schema: {\n" +
	"  \"recipes\": [\n" +
	"    { \"ingredient\": string, \"recipeName\": string, \"pageNumber\": number, \"confidence\": number }\n" +
	"  ]\n" +
	"}.\n" +
	"Notes: If a value is ambiguous, make your best guess and lower confidence. " +
	"Confidence is a float between 0 and 1. No markdown, no extra text.\n\n"

// Extractor は OpenAI の画像入力モデルで索引ページを読み取る ingestion.PageExtractor 実装
type Extractor struct {
	client      openai.Client
	model       string
	timeout     time.Duration
	limiter     *rate.Limiter
	baseBackoff time.Duration
	logger      *slog.Logger
}

type extractorOptions struct {
	model             string
	timeout           time.Duration
	requestsPerMinute int
	requestOptions    []option.RequestOption
	logger            *slog.Logger
}

// ExtractorOption は Extractor のオプション設定
type ExtractorOption func(*extractorOptions)

// WithModel はモデル名を指定する
func WithModel(model string) ExtractorOption {
	return func(o *extractorOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithTimeout は1ページあたりのタイムアウトを指定する
func WithTimeout(timeout time.Duration) ExtractorOption {
	return func(o *extractorOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithRequestsPerMinute は1分あたりのリクエスト数の上限を指定する（0以下で無制限）
func WithRequestsPerMinute(n int) ExtractorOption {
	return func(o *extractorOptions) {
		o.requestsPerMinute = n
	}
}

// WithRequestOptions は openai-go のリクエストオプションを追加する
func WithRequestOptions(opts ...option.RequestOption) ExtractorOption {
	return func(o *extractorOptions) {
		o.requestOptions = append(o.requestOptions, opts...)
	}
}

// WithExtractorLogger はロガーを設定する
func WithExtractorLogger(logger *slog.Logger) ExtractorOption {
	return func(o *extractorOptions) {
		o.logger = logger
	}
}

// NewExtractor は新しい Extractor を作成する
func NewExtractor(apiKey string, opts ...ExtractorOption) (*Extractor, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := extractorOptions{
		model:   DefaultModel,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	// リトライは generateWithRetry で行うため SDK 側では行わない
	requestOptions := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, options.requestOptions...)

	var limiter *rate.Limiter
	if options.requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(options.requestsPerMinute)), 1)
	}

	return &Extractor{
		client:      openai.NewClient(requestOptions...),
		model:       options.model,
		timeout:     options.timeout,
		limiter:     limiter,
		baseBackoff: BaseBackoff,
		logger:      options.logger,
	}, nil
}

// ModelName はモデル名を返す
func (e *Extractor) ModelName() string {
	return e.model
}

// pageResponse はモデルが返す JSON
type pageResponse struct {
	Recipes []struct {
		Ingredient string  `json:"ingredient"`
		RecipeName string  `json:"recipeName"`
		PageNumber int     `json:"pageNumber"`
		Confidence float64 `json:"confidence"`
	} `json:"recipes"`
}

// Extract は1ページの画像を読み取り、抽出結果を返す
// 失敗はすべて ingestion.ErrExtractionFailed をラップして返す
func (e *Extractor) Extract(ctx context.Context, image []byte, contentType string) ([]ingestion.Extraction, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", ingestion.ErrExtractionFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	dataURL := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(image)
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(e.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(extractionPrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	}

	content, err := e.generateWithRetry(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ingestion.ErrExtractionFailed, err)
	}

	extractions, err := parseExtractions(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ingestion.ErrExtractionFailed, err)
	}
	return extractions, nil
}

func (e *Extractor) generateWithRetry(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			backoffDuration := time.Duration(math.Pow(2, float64(attempt-1))) * e.baseBackoff
			if backoffDuration > MaxBackoff {
				backoffDuration = MaxBackoff
			}
			e.logger.Debug("レート制限のため待機", "attempt", attempt, "backoff", backoffDuration)

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoffDuration):
			}
		}

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("rate limiter wait failed: %w", err)
			}
		}

		completion, err := e.client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = err

			if isRateLimitError(err) {
				continue
			}

			return "", fmt.Errorf("OpenAI API call failed: %w", err)
		}

		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("no completion choices returned")
		}

		return completion.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func parseExtractions(content string) ([]ingestion.Extraction, error) {
	content = strings.TrimSpace(content)
	// コードフェンス付きで返ってくることがある
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var resp pageResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &resp); err != nil {
		return nil, fmt.Errorf("invalid response format: %w", err)
	}

	extractions := make([]ingestion.Extraction, 0, len(resp.Recipes))
	for _, r := range resp.Recipes {
		ingredient := strings.TrimSpace(r.Ingredient)
		recipeName := strings.TrimSpace(r.RecipeName)
		if ingredient == "" || recipeName == "" {
			continue
		}
		extractions = append(extractions, ingestion.Extraction{
			Ingredient: ingredient,
			RecipeName: recipeName,
			PageNumber: r.PageNumber,
			Confidence: min(max(r.Confidence, 0), 1),
		})
	}
	return extractions, nil
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}

	return false
}

// インターフェース実装の確認
var _ ingestion.PageExtractor = (*Extractor)(nil)
