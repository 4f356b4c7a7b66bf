package providers

import (
	"net/http"
	"os"

	"github.com/c360studio/launchmate/llm"
)

// OpenAIProvider talks to OpenAI or OpenRouter. The wire format is shared
// with OllamaProvider.
type OpenAIProvider struct {
	OllamaProvider
}

func init() {
	llm.RegisterProvider(&OpenAIProvider{})
}

// Name returns "openai".
func (o *OpenAIProvider) Name() string {
	return "openai"
}

// BuildURL returns the chat completions endpoint.
func (o *OpenAIProvider) BuildURL(baseURL, _ string) string {
	return chatCompletionsURL(baseURL, "https://api.openai.com/v1")
}

// SetHeaders adds the bearer token and the optional OpenRouter attribution
// headers.
func (o *OpenAIProvider) SetHeaders(req *http.Request) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	if siteURL := os.Getenv("OPENROUTER_SITE_URL"); siteURL != "" {
		req.Header.Set("HTTP-Referer", siteURL)
	}
	if siteName := os.Getenv("OPENROUTER_SITE_NAME"); siteName != "" {
		req.Header.Set("X-Title", siteName)
	}
}
