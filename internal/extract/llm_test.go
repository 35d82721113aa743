package extract

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var invoiceText = strings.Repeat("DANFE Documento auxiliar da nota fiscal eletronica. ", 3)

// llmServer answers the model listing and replies to completions with
// reply, recording every request.
type llmServer struct {
	*httptest.Server
	requests  atomic.Int32
	mu        sync.Mutex
	body      chatRequest
	status    int
	replyBody string
}

func newLLMServer(t *testing.T, reply chatMessage) *llmServer {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": reply}},
	})
	require.NoError(t, err)
	return newRawLLMServer(t, http.StatusOK, string(payload))
}

func newRawLLMServer(t *testing.T, status int, replyBody string) *llmServer {
	t.Helper()
	s := &llmServer{status: status, replyBody: replyBody}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		switch r.URL.Path {
		case "/v1/models":
			_, _ = w.Write([]byte(`{"data":[{"id":"qwen/qwen3-vl-4b"}]}`))
		case "/v1/chat/completions":
			var body chatRequest
			_ = json.NewDecoder(r.Body).Decode(&body)
			s.mu.Lock()
			s.body = body
			s.mu.Unlock()
			w.WriteHeader(s.status)
			_, _ = w.Write([]byte(s.replyBody))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *llmServer) lastBody() chatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body
}

func TestExtractItems(t *testing.T) {
	srv := newLLMServer(t, chatMessage{
		Role: "assistant",
		Content: `{"items":[
			{"descricao":" Parafuso ","quantidade":"10,5","valor_unit":0.5,"valor_total":"5.25"},
			{"descricao":"Porca","quantidade":null,"valor_unit":"x","valor_total":2}
		]}`,
	})

	llm := NewLLM(srv.URL+"/", "qwen/qwen3-vl-4b")
	got, err := llm.ExtractItems(context.Background(), invoiceText)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Parafuso", got[0].Description)
	assert.InDelta(t, 10.5, got[0].Quantity, 1e-9)
	assert.InDelta(t, 0.5, got[0].UnitValue, 1e-9)
	assert.InDelta(t, 5.25, got[0].TotalValue, 1e-9)
	assert.Empty(t, got[0].DocumentLabel)

	assert.Zero(t, got[1].Quantity)
	assert.Zero(t, got[1].UnitValue)
	assert.InDelta(t, 2, got[1].TotalValue, 1e-9)

	assert.EqualValues(t, 2, srv.requests.Load())
	body := srv.lastBody()
	assert.Equal(t, "qwen/qwen3-vl-4b", body.Model)
	assert.Zero(t, body.Temperature)
	assert.Equal(t, 4096, body.MaxTokens)
	assert.False(t, body.Stream)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "system", body.Messages[0].Role)
	assert.Contains(t, body.Messages[0].Content, `"items"`)
	assert.Equal(t, userPromptPrefix+invoiceText, body.Messages[1].Content)
}

func TestExtractItems_TruncatesText(t *testing.T) {
	srv := newLLMServer(t, chatMessage{Content: `{"items":[{"descricao":"A"}]}`})

	long := strings.Repeat("x", MaxPromptChars+1000)
	_, err := NewLLM(srv.URL, "m").ExtractItems(context.Background(), long)
	require.NoError(t, err)
	assert.Len(t, srv.lastBody().Messages[1].Content, len(userPromptPrefix)+MaxPromptChars)
}

func TestExtractItems_ShortTextMakesNoRequest(t *testing.T) {
	srv := newLLMServer(t, chatMessage{Content: `{"items":[{"descricao":"A"}]}`})

	for _, text := range []string{"", "   ", strings.Repeat("a", MinTextLength-1)} {
		_, err := NewLLM(srv.URL, "m").ExtractItems(context.Background(), text)
		assert.ErrorIs(t, err, ErrTextTooShort)
	}
	assert.Zero(t, srv.requests.Load())
}

func TestExtractItems_ReasoningFallback(t *testing.T) {
	srv := newLLMServer(t, chatMessage{
		Reasoning: "Analisando a nota... resposta: " +
			`{"items": [{"descricao": "Cabo", "quantidade": 2, "valor_unit": 3, "valor_total": 6}]}` +
			" fim.",
	})

	got, err := NewLLM(srv.URL, "m").ExtractItems(context.Background(), invoiceText)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Cabo", got[0].Description)
	assert.InDelta(t, 6, got[0].TotalValue, 1e-9)
}

func TestExtractItems_Malformed(t *testing.T) {
	tests := map[string]chatMessage{
		"empty":      {Content: "  "},
		"prose only": {Content: "Não encontrei itens."},
		"zero items": {Content: `{"items": []}`},
		"bad embed":  {Content: `itens: {"items": [ {"descricao": ] }`},
	}
	for name, reply := range tests {
		t.Run(name, func(t *testing.T) {
			srv := newLLMServer(t, reply)
			_, err := NewLLM(srv.URL, "m").ExtractItems(context.Background(), invoiceText)
			require.Error(t, err)
			assert.True(t, IsMalformedResponse(err), err.Error())
		})
	}
}

func TestExtractItems_HTTPError(t *testing.T) {
	srv := newRawLLMServer(t, http.StatusInternalServerError, strings.Repeat("e", 1000))

	_, err := NewLLM(srv.URL, "m").ExtractItems(context.Background(), invoiceText)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Contains(t, err.Error(), strings.Repeat("e", errorBodyChars))
	assert.NotContains(t, err.Error(), strings.Repeat("e", errorBodyChars+1))
}

func TestExtractItems_ServiceNotRunning(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewLLM(url, "m").ExtractItems(context.Background(), invoiceText)
	require.Error(t, err)
	assert.True(t, IsServiceUnavailable(err))
	assert.Contains(t, err.Error(), "not running")
}

func TestProbe_IgnoresOtherFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	assert.NoError(t, NewLLM(srv.URL, "m").Probe(context.Background()))
	assert.EqualValues(t, 1, hits.Load())
}

func TestProbe_Cancelled(t *testing.T) {
	srv := newLLMServer(t, chatMessage{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewLLM(srv.URL, "m").Probe(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}
