package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// OllamaServer answers the embedding and chat endpoints of an Ollama server.
// Embeddings come from Vector; every chat request gets Answer back.
type OllamaServer struct {
	URL    string
	Answer string

	mu          sync.Mutex
	embedCalls  int
	chatPrompts []string
}

func NewOllamaServer(t testing.TB, answer string) *OllamaServer {
	t.Helper()
	s := &OllamaServer{Answer: answer}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/embeddings", s.handleEmbeddings)
	mux.HandleFunc("/api/chat", s.handleChat)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	s.URL = srv.URL
	return s
}

func (s *OllamaServer) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.embedCalls++
	s.mu.Unlock()
	writeJSON(w, map[string]any{"embedding": Vector(req.Prompt, DefaultDim)})
}

func (s *OllamaServer) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	for _, m := range req.Messages {
		s.chatPrompts = append(s.chatPrompts, m.Content)
	}
	s.mu.Unlock()
	writeJSON(w, map[string]any{
		"model":   "fake",
		"message": map[string]string{"role": "assistant", "content": s.Answer},
		"done":    true,
	})
}

// EmbedCalls returns how many embedding requests were served.
func (s *OllamaServer) EmbedCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.embedCalls
}

// ChatPrompts returns the prompts received on the chat endpoint.
func (s *OllamaServer) ChatPrompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.chatPrompts...)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
