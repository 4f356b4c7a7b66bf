package providers

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/c360studio/launchmate/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistered(t *testing.T) {
	for _, name := range []string{"anthropic", "gemini", "ollama", "openai"} {
		assert.NotNil(t, llm.GetProvider(name), name)
	}
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name     string
		provider llm.Provider
		baseURL  string
		model    string
		want     string
	}{
		{"anthropic default", &AnthropicProvider{}, "", "", "https://api.anthropic.com/v1/messages"},
		{"anthropic trailing slash", &AnthropicProvider{}, "https://proxy.local/", "", "https://proxy.local/v1/messages"},
		{"ollama default", &OllamaProvider{}, "", "", "http://localhost:11434/v1/chat/completions"},
		{"ollama already complete", &OllamaProvider{}, "http://gpu:8000/v1/chat/completions", "", "http://gpu:8000/v1/chat/completions"},
		{"openai default", &OpenAIProvider{}, "", "", "https://api.openai.com/v1/chat/completions"},
		{"openrouter", &OpenAIProvider{}, "https://openrouter.ai/api/v1/", "", "https://openrouter.ai/api/v1/chat/completions"},
		{"gemini default", &GeminiProvider{}, "", "gemini-2.0-flash",
			"https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent"},
		{"gemini custom", &GeminiProvider{}, "http://127.0.0.1:9000/", "gemini-pro",
			"http://127.0.0.1:9000/v1beta/models/gemini-pro:generateContent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.provider.BuildURL(tt.baseURL, tt.model))
		})
	}
}

func TestSetHeaders(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "ak")
	t.Setenv("OPENAI_API_KEY", "ok")
	t.Setenv("GEMINI_API_KEY", "gk")
	t.Setenv("OPENROUTER_SITE_NAME", "launchmate")

	req := httptest.NewRequest("POST", "/", nil)
	(&AnthropicProvider{}).SetHeaders(req)
	assert.Equal(t, "ak", req.Header.Get("x-api-key"))
	assert.Equal(t, anthropicVersion, req.Header.Get("anthropic-version"))

	req = httptest.NewRequest("POST", "/", nil)
	(&OpenAIProvider{}).SetHeaders(req)
	assert.Equal(t, "Bearer ok", req.Header.Get("Authorization"))
	assert.Equal(t, "launchmate", req.Header.Get("X-Title"))

	req = httptest.NewRequest("POST", "/", nil)
	(&GeminiProvider{}).SetHeaders(req)
	assert.Equal(t, "gk", req.Header.Get("x-goog-api-key"))
}

var conversation = []llm.Message{
	{Role: "system", Content: "You advise founders."},
	{Role: "user", Content: "Give me updates."},
	{Role: "assistant", Content: "Which market?"},
	{Role: "user", Content: "Fintech."},
}

func TestAnthropicProvider_BuildRequestBody(t *testing.T) {
	temp := 0.0
	body, err := (&AnthropicProvider{}).BuildRequestBody("claude-3-5-haiku-latest", conversation, &temp, 0)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "You advise founders.", got["system"])
	assert.EqualValues(t, anthropicMaxTokens, got["max_tokens"])
	assert.EqualValues(t, 0, got["temperature"], "zero temperature must be sent")
	assert.Len(t, got["messages"], 3)
	assert.NotContains(t, string(body), `"role":"system"`)
}

func TestAnthropicProvider_ParseResponse(t *testing.T) {
	body := []byte(`{
		"content": [{"type": "text", "text": "First. "}, {"type": "tool_use"}, {"type": "text", "text": "Second."}],
		"model": "claude-3-5-haiku-20241022",
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 15, "output_tokens": 8}
	}`)

	resp, err := (&AnthropicProvider{}).ParseResponse(body, "claude-haiku")
	require.NoError(t, err)
	assert.Equal(t, "First. Second.", resp.Content)
	assert.Equal(t, "claude-3-5-haiku-20241022", resp.Model)
	assert.Equal(t, 23, resp.Usage.TotalTokens)
	assert.Equal(t, "end_turn", resp.FinishReason)

	_, err = (&AnthropicProvider{}).ParseResponse([]byte(`not json`), "")
	assert.Error(t, err)
}

func TestOllamaProvider_BuildRequestBody(t *testing.T) {
	body, err := (&OllamaProvider{}).BuildRequestBody("llama3.2", conversation, nil, 512)
	require.NoError(t, err)

	var got chatRequest
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "llama3.2", got.Model)
	assert.Len(t, got.Messages, 4, "system stays inline")
	assert.Equal(t, 512, got.MaxTokens)
	assert.Nil(t, got.Temperature)

	body, err = (&OllamaProvider{}).BuildRequestBody("llama3.2", conversation, nil, 0)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "max_tokens")
}

func TestOllamaProvider_ParseResponse(t *testing.T) {
	body := []byte(`{
		"model": "llama3.2",
		"choices": [{"message": {"role": "assistant", "content": "Hello"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 3, "completion_tokens": 1, "total_tokens": 4}
	}`)
	resp, err := (&OpenAIProvider{}).ParseResponse(body, "")
	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Content)
	assert.Equal(t, 4, resp.Usage.TotalTokens)

	_, err = (&OllamaProvider{}).ParseResponse([]byte(`{"choices": []}`), "")
	assert.ErrorContains(t, err, "no choices")
}

func TestGeminiProvider_BuildRequestBody(t *testing.T) {
	temp := 0.4
	body, err := (&GeminiProvider{}).BuildRequestBody("gemini-2.0-flash", conversation, &temp, 256)
	require.NoError(t, err)

	var got geminiRequest
	require.NoError(t, json.Unmarshal(body, &got))
	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "You advise founders.", got.SystemInstruction.Parts[0].Text)
	require.Len(t, got.Contents, 3)
	assert.Equal(t, "user", got.Contents[0].Role)
	assert.Equal(t, "model", got.Contents[1].Role)
	assert.Equal(t, "Fintech.", got.Contents[2].Parts[0].Text)
	require.NotNil(t, got.GenerationConfig)
	assert.Equal(t, 256, got.GenerationConfig.MaxOutputTokens)
	assert.InDelta(t, 0.4, *got.GenerationConfig.Temperature, 1e-9)

	body, err = (&GeminiProvider{}).BuildRequestBody("gemini-2.0-flash", conversation[1:2], nil, 0)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "generationConfig")
	assert.NotContains(t, string(body), "systemInstruction")
}

func TestGeminiProvider_ParseResponse(t *testing.T) {
	body := []byte(`{
		"candidates": [{"content": {"role": "model", "parts": [{"text": "1. Rates "}, {"text": "are rising."}]}, "finishReason": "STOP"}],
		"usageMetadata": {"promptTokenCount": 20, "candidatesTokenCount": 5, "totalTokenCount": 25}
	}`)
	resp, err := (&GeminiProvider{}).ParseResponse(body, "gemini-2.0-flash")
	require.NoError(t, err)
	assert.Equal(t, "1. Rates are rising.", resp.Content)
	assert.Equal(t, "gemini-2.0-flash", resp.Model)
	assert.Equal(t, 25, resp.Usage.TotalTokens)
	assert.Equal(t, "STOP", resp.FinishReason)

	_, err = (&GeminiProvider{}).ParseResponse([]byte(`{"candidates": []}`), "gemini-2.0-flash")
	assert.ErrorContains(t, err, "no candidates")
}
