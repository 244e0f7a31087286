package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"invoicesheet/internal/config"
	"invoicesheet/internal/model"
)

const (
	chatCompletionsPath = "/v1/chat/completions"
	maxCompletionTokens = 2000
)

const extractionPrompt = `Extract the invoice data from this image and answer with a single JSON object:
{"shop_name": string, "date": "YYYY-MM-DD", "total_ht": number, "total_ttc": number, "vat": number,
 "items": [{"description": string, "quantity": number, "unit_price": number}]}
Amounts are plain numbers without currency symbols. Use null for fields you cannot read.
Answer with the JSON object only, no commentary.`

// OpenAIClient implements Extractor against an OpenAI-compatible vision
// chat-completions endpoint.
type OpenAIClient struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewOpenAIClient builds the extraction client from configuration.
func NewOpenAIClient(cfg config.ExtractionConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("extraction api key is required")
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIClient{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}, nil
}

var _ Extractor = (*OpenAIClient)(nil)

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// supportedMIME maps accepted upload types to the data-URL media type.
// PDFs are out: the backend only takes images and the caller is expected to
// upload a rendered page.
func supportedMIME(fileName, mimeType string) (string, bool) {
	ct := strings.ToLower(strings.TrimSpace(mimeType))
	switch ct {
	case "image/png", "image/jpeg", "image/webp":
		return ct, true
	}
	name := strings.ToLower(fileName)
	switch {
	case strings.HasSuffix(name, ".png"):
		return "image/png", true
	case strings.HasSuffix(name, ".jpg"), strings.HasSuffix(name, ".jpeg"):
		return "image/jpeg", true
	case strings.HasSuffix(name, ".webp"):
		return "image/webp", true
	}
	return "", false
}

// Extract sends the file to the vision backend and normalizes its reply into
// the fixed invoice shape. No retry happens here.
func (c *OpenAIClient) Extract(ctx context.Context, data []byte, fileName, mimeType string) (*model.InvoiceRecord, *Usage, error) {
	mt, ok := supportedMIME(fileName, mimeType)
	if !ok {
		return nil, nil, &Error{Kind: KindRejected, Msg: fmt.Sprintf("unsupported file type %q", mimeType)}
	}
	if len(data) == 0 {
		return nil, nil, &Error{Kind: KindRejected, Msg: "empty file"}
	}

	dataURL := "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(data)
	payload := chatRequest{
		Model:     c.model,
		MaxTokens: maxCompletionTokens,
		ResponseFormat: &respFormat{
			Type: "json_object",
		},
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: extractionPrompt},
					{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, nil, &Error{Kind: KindRejected, Msg: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatCompletionsPath, &buf)
	if err != nil {
		return nil, nil, &Error{Kind: KindRejected, Msg: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			return nil, nil, &Error{Kind: KindTimeout, Msg: "extraction backend timed out", Err: err}
		}
		return nil, nil, &Error{Kind: KindUnavailable, Msg: "extraction backend unreachable", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusRequestTimeout:
		return nil, nil, &Error{Kind: KindTimeout, Msg: "extraction backend timed out"}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, nil, &Error{Kind: KindUnavailable, Msg: fmt.Sprintf("extraction backend status %d", resp.StatusCode)}
	default:
		return nil, nil, &Error{Kind: KindRejected, Msg: fmt.Sprintf("extraction backend status %d", resp.StatusCode)}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, nil, &Error{Kind: KindParse, Msg: "decode backend response", Err: err}
	}
	if len(out.Choices) == 0 {
		return nil, nil, &Error{Kind: KindParse, Msg: "backend returned no choices"}
	}

	record, parseErr := parseInvoice(out.Choices[0].Message.Content)
	if parseErr != nil {
		return nil, nil, parseErr
	}

	c.logger.Debug("invoice extracted",
		zap.String("shop_name", record.ShopName),
		zap.Int("items", len(record.Items)),
		zap.Int("total_tokens", out.Usage.TotalTokens))

	usage := out.Usage
	return record, &usage, nil
}
