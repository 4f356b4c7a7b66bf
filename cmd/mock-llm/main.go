// Package main implements an offline LLM server for local development and
// end-to-end runs. It answers OpenAI-compatible /v1/chat/completions
// requests, so a model registry can point an "ollama" or "openai" endpoint
// at it.
//
// Usage:
//
//	mock-llm -port 11434 [-fixtures /path/to/fixtures]
//
// Fixture files are named by model: "llama3.2.txt" or "llama3.2.json" is
// returned as the assistant message for model "llama3.2". Numbered files
// ("llama3.2@1.txt", "llama3.2@2.txt") are served in order; the base file
// repeats after they run out.
//
// Without a fixture for the requested model the server picks a canned
// reply by the kind of prompt: a JSON array of contacts for connection
// lookups, a short pitch for pitch requests, and a market update otherwise.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// promptKind classifies a request by its last user message.
type promptKind string

const (
	kindInsight     promptKind = "insight"
	kindPitch       promptKind = "pitch"
	kindConnections promptKind = "connections"
)

func classify(msgs []chatMessage) promptKind {
	var last string
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			last = strings.ToLower(msgs[i].Content)
			break
		}
	}
	switch {
	case strings.Contains(last, "json array"):
		return kindConnections
	case strings.Contains(last, "pitch"):
		return kindPitch
	default:
		return kindInsight
	}
}

var canned = map[promptKind][]string{
	kindInsight: {
		"1. Small-business lending rates eased this quarter.\n2. Two well-funded competitors launched self-serve tiers.\n3. Regulators opened comment on new data-sharing rules.",
		"1. Seed rounds in this space are closing faster than last year.\n2. A major incumbent announced a partner program.\n3. Customer acquisition costs on paid social are rising.",
	},
	kindPitch: {
		"Every week founders lose hours to work a tool should do. We built that tool. Ten pilot customers already use it daily, and we are raising to reach a hundred.",
	},
	kindConnections: {
		`[{"name":"Jordan Avery","role":"Founder, Terrapin Coffee Cart","info":"Runs three mobile coffee carts near campus","relevance":"Early adopter profile for small-operator tooling"},` +
			`{"name":"Priya Natarajan","role":"Owner, Route 1 Print Shop","info":"Grew a one-person print shop into a local chain","relevance":"Knows local small-business networks"},` +
			`{"name":"Marcus Lee","role":"Co-founder, Hyattsville Makers","info":"Hosts monthly founder meetups","relevance":"Access to early users and mentors"}]`,
	},
}

type server struct {
	fixtures map[string][]string
	logger   *slog.Logger

	calls atomic.Int64

	mu         sync.Mutex
	modelCalls map[string]int
	kindCalls  map[promptKind]int
}

func newServer(fixtures map[string][]string, logger *slog.Logger) *server {
	return &server{
		fixtures:   fixtures,
		logger:     logger,
		modelCalls: make(map[string]int),
		kindCalls:  make(map[promptKind]int),
	}
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("GET /stats", s.handleStats)
	return mux
}

func main() {
	fixtureDir := flag.String("fixtures", os.Getenv("MOCK_LLM_FIXTURES"), "directory of per-model reply files")
	port := flag.Int("port", 11434, "port to listen on")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	fixtures := map[string][]string{}
	if *fixtureDir != "" {
		loaded, err := loadFixtures(*fixtureDir)
		if err != nil {
			logger.Error("Failed to load fixtures", "dir", *fixtureDir, "error", err)
			os.Exit(1)
		}
		fixtures = loaded
		for model, seq := range fixtures {
			logger.Info("Loaded fixtures", "model", model, "count", len(seq))
		}
	}

	addr := fmt.Sprintf(":%d", *port)
	logger.Info("Mock LLM server listening", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: newServer(fixtures, logger).routes(), ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Messages) == 0 {
		http.Error(w, "messages is required", http.StatusBadRequest)
		return
	}

	callNum := s.calls.Add(1)
	content, source := s.reply(req)
	s.logger.Debug("Served completion", "call", callNum, "model", req.Model, "source", source)

	writeJSON(w, chatResponse{
		ID:      fmt.Sprintf("mock-%d", callNum),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: chatUsage{
			PromptTokens:     len(req.Messages[len(req.Messages)-1].Content) / 4,
			CompletionTokens: len(content) / 4,
			TotalTokens:      (len(req.Messages[len(req.Messages)-1].Content) + len(content)) / 4,
		},
	})
}

// reply picks the fixture for the model's next call, or a canned reply
// rotating per prompt kind.
func (s *server) reply(req chatRequest) (content, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq, ok := s.fixtures[req.Model]; ok {
		i := s.modelCalls[req.Model]
		s.modelCalls[req.Model]++
		return seq[min(i, len(seq)-1)], "fixture"
	}

	kind := classify(req.Messages)
	i := s.kindCalls[kind]
	s.kindCalls[kind]++
	options := canned[kind]
	return options[i%len(options)], string(kind)
}

func (s *server) handleModels(w http.ResponseWriter, _ *http.Request) {
	type modelEntry struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}
	names := make([]string, 0, len(s.fixtures))
	for name := range s.fixtures {
		names = append(names, name)
	}
	slices.Sort(names)

	models := make([]modelEntry, 0, len(names))
	for _, name := range names {
		models = append(models, modelEntry{ID: name, Object: "model", OwnedBy: "mock-llm"})
	}
	writeJSON(w, map[string]any{"object": "list", "data": models})
}

func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	byModel := make(map[string]int, len(s.modelCalls))
	for k, v := range s.modelCalls {
		byModel[k] = v
	}
	byKind := make(map[string]int, len(s.kindCalls))
	for k, v := range s.kindCalls {
		byKind[string(k)] = v
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{
		"total_calls":    s.calls.Load(),
		"calls_by_model": byModel,
		"calls_by_kind":  byKind,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// fixtureNameRe splits "model@N.ext" and "model.ext". Model names may
// contain dots (llama3.2), so the call number uses its own separator.
var fixtureNameRe = regexp.MustCompile(`^([^@]+?)(?:@(\d+))?\.(txt|json)$`)

// loadFixtures reads reply files from dir. Per model the numbered files come
// first in numeric order, followed by the base file. JSON files must hold
// valid JSON.
func loadFixtures(dir string) (map[string][]string, error) {
	base := make(map[string]string)
	numbered := make(map[string]map[int]string)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		m := fixtureNameRe.FindStringSubmatch(d.Name())
		if m == nil {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if m[3] == "json" && !json.Valid(data) {
			return fmt.Errorf("invalid JSON in %s", path)
		}

		model, content := m[1], strings.TrimSpace(string(data))
		if m[2] == "" {
			base[model] = content
			return nil
		}
		n, _ := strconv.Atoi(m[2])
		if numbered[model] == nil {
			numbered[model] = make(map[int]string)
		}
		numbered[model][n] = content
		return nil
	})
	if err != nil {
		return nil, err
	}

	fixtures := make(map[string][]string)
	for model, byIndex := range numbered {
		indices := make([]int, 0, len(byIndex))
		for i := range byIndex {
			indices = append(indices, i)
		}
		slices.Sort(indices)
		for _, i := range indices {
			fixtures[model] = append(fixtures[model], byIndex[i])
		}
	}
	for model, content := range base {
		fixtures[model] = append(fixtures[model], content)
	}

	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixture files found in %s", dir)
	}
	return fixtures, nil
}
