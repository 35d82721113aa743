package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"regexp"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/notafiscal/internal/model"
)

const (
	// MaxPromptChars bounds the document text sent in one request.
	MaxPromptChars = 50000

	probeTimeout   = 5 * time.Second
	maxReplyTokens = 4096
	errorBodyChars = 200
	excerptChars   = 300
)

const systemPrompt = "Você é um assistente especializado em extração de dados de DANFE " +
	"(nota fiscal eletrônica). Extraia APENAS os itens/produtos da nota fiscal. " +
	"Retorne SOMENTE um objeto JSON válido no formato:\n" +
	`{"items": [{"descricao": "string", "quantidade": number, "valor_unit": number, "valor_total": number}]}` + "\n" +
	"Use ponto (.) como separador decimal. NÃO adicione comentários, explicações ou texto extra. " +
	"Responda APENAS com o JSON."

const userPromptPrefix = "Extraia os itens desta nota fiscal e retorne o JSON:\n\n"

// itemsObject finds the first JSON object with an "items" array inside
// free text, such as a reply wrapped in prose or a code fence.
var itemsObject = regexp.MustCompile(`\{[\s\S]*?"items"[\s\S]*?\[[\s\S]*?\][\s\S]*?\}`)

// LLM extracts line items from document text through an OpenAI-compatible
// chat completions endpoint, typically a model served on localhost.
type LLM struct {
	baseURL string
	model   string
	client  *http.Client
	probe   *http.Client
	log     *zap.SugaredLogger
}

// LLMOption configures an LLM.
type LLMOption func(*LLM)

// WithHTTPClient sets the client used for the completion request.
func WithHTTPClient(c *http.Client) LLMOption {
	return func(l *LLM) { l.client = c }
}

// WithLogger sets the logger.
func WithLogger(log *zap.SugaredLogger) LLMOption {
	return func(l *LLM) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLLM creates a client for the server at baseURL (without the /v1
// suffix). The completion request has no timeout of its own; a local model
// may take minutes, so only ctx bounds it.
func NewLLM(baseURL, modelName string, opts ...LLMOption) *LLM {
	l := &LLM{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   modelName,
		client:  &http.Client{},
		probe:   &http.Client{Timeout: probeTimeout},
		log:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type itemsReply struct {
	Items []map[string]any `json:"items"`
}

// Probe checks that the server answers GET /v1/models. Only a refused or
// timed-out connection is reported; any other failure is logged and nil is
// returned so the extraction is still attempted.
func (l *LLM) Probe(ctx context.Context) error {
	url := l.baseURL + "/v1/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building probe request: %w", err)
	}

	resp, err := l.probe.Do(req)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case isConnRefused(err):
			return &ServiceUnavailableError{URL: l.baseURL, Reason: "is not running", Err: err}
		case isTimeout(err):
			return &ServiceUnavailableError{URL: l.baseURL, Reason: "did not respond", Err: err}
		}
		l.log.Warnw("LLM probe failed, trying anyway", "url", url, "error", err)
		return nil
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	l.log.Debugw("LLM probe", "url", url, "status", resp.StatusCode)
	return nil
}

// ExtractItems asks the model for the line items in text. Text shorter than
// MinTextLength is rejected with ErrTextTooShort before any request. An
// empty item list is reported as a MalformedResponseError. The returned
// items have no DocumentLabel.
func (l *LLM) ExtractItems(ctx context.Context, text string) ([]model.LineItem, error) {
	if textLen(text) < MinTextLength {
		return nil, fmt.Errorf("%w (%d characters)", ErrTextTooShort, textLen(text))
	}

	if err := l.Probe(ctx); err != nil {
		return nil, err
	}

	reply, err := l.complete(ctx, truncate(text, MaxPromptChars))
	if err != nil {
		return nil, err
	}

	parsed, err := parseItemsReply(reply)
	if err != nil {
		return nil, err
	}

	items := make([]model.LineItem, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		items = append(items, model.LineItem{
			Description: strings.TrimSpace(stringField(it["descricao"])),
			Quantity:    ParseLLMNumber(it["quantidade"]),
			UnitValue:   ParseLLMNumber(it["valor_unit"]),
			TotalValue:  ParseLLMNumber(it["valor_total"]),
		})
	}
	l.log.Debugw("LLM items extracted", "count", len(items))
	return items, nil
}

// complete sends one chat completion and returns the reply text: the
// message content, or the reasoning field when content is empty.
func (l *LLM) complete(ctx context.Context, text string) (string, error) {
	body := chatRequest{
		Model: l.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPromptPrefix + text},
		},
		Temperature: 0,
		MaxTokens:   maxReplyTokens,
		Stream:      false,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	url := l.baseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	l.log.Debugw("sending chat completion", "url", url, "model", l.model, "chars", len(text))
	resp, err := l.client.Do(req)
	if err != nil {
		if isConnRefused(err) {
			return "", &ServiceUnavailableError{URL: l.baseURL, Reason: "is not running", Err: err}
		}
		return "", fmt.Errorf("calling LLM: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading LLM response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("LLM returned status %d: %s",
			resp.StatusCode, truncate(string(respBody), errorBodyChars))
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", &MalformedResponseError{
			Reason:  "undecodable completion",
			Excerpt: truncate(string(respBody), excerptChars),
			Err:     err,
		}
	}
	if len(out.Choices) == 0 {
		return "", &MalformedResponseError{Reason: "no choices"}
	}

	msg := out.Choices[0].Message
	reply := strings.TrimSpace(msg.Content)
	if reply == "" {
		reply = strings.TrimSpace(msg.Reasoning)
	}
	if reply == "" {
		return "", &MalformedResponseError{Reason: "empty content and reasoning"}
	}
	return reply, nil
}

// parseItemsReply decodes the reply as JSON, falling back to the first
// embedded object that carries an "items" array.
func parseItemsReply(reply string) (*itemsReply, error) {
	var parsed itemsReply
	if err := json.Unmarshal([]byte(reply), &parsed); err != nil {
		match := itemsObject.FindString(reply)
		if match == "" {
			return nil, &MalformedResponseError{
				Reason:  "no JSON object with items",
				Excerpt: truncate(reply, excerptChars),
			}
		}
		parsed = itemsReply{}
		if err := json.Unmarshal([]byte(match), &parsed); err != nil {
			return nil, &MalformedResponseError{
				Reason:  "invalid embedded JSON",
				Excerpt: truncate(match, excerptChars),
				Err:     err,
			}
		}
	}

	if len(parsed.Items) == 0 {
		return nil, &MalformedResponseError{
			Reason:  "zero items",
			Excerpt: truncate(reply, excerptChars),
		}
	}
	return &parsed, nil
}

func stringField(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func isConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
