// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package answer

import (
	"context"
	"strings"
	"time"

	"github.com/jeranaias/rigrun-chat/internal/ollama"
)

// DefaultSystemPrompt asks the model for markdown the renderer handles well.
const DefaultSystemPrompt = `Anda adalah asisten yang membantu menjawab pertanyaan pengguna dengan akurat.

Format jawaban dengan markdown:
- Gunakan daftar bernomor (1. 2. 3.) untuk langkah-langkah
- Gunakan bullet point (-) untuk daftar biasa
- Gunakan **tebal** untuk istilah penting dan *miring* untuk penekanan
- Gunakan heading (##) hanya untuk jawaban yang panjang

Jika Anda tidak mengetahui jawabannya, katakan dengan jujur.`

// ApproachOllama is the metadata approach of OllamaBackend answers.
const ApproachOllama = "ollama_chat"

// OllamaOptions configures an OllamaBackend.
type OllamaOptions struct {
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
}

// OllamaBackend answers with a local Ollama model. It has no document
// retrieval, so results carry no sources and no confidence.
type OllamaBackend struct {
	client *ollama.Client
	opts   OllamaOptions
}

// NewOllamaBackend creates a backend over client.
func NewOllamaBackend(client *ollama.Client, opts OllamaOptions) *OllamaBackend {
	if opts.Model == "" {
		opts.Model = client.DefaultModel()
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	return &OllamaBackend{client: client, opts: opts}
}

// Name implements Backend.
func (b *OllamaBackend) Name() string { return "ollama:" + b.opts.Model }

// Ping implements Backend. Ollama must be reachable and the configured model
// installed.
func (b *OllamaBackend) Ping(ctx context.Context) error {
	if err := b.client.CheckRunning(ctx); err != nil {
		return &BackendError{Backend: b.Name(), Op: "ping", Cause: err}
	}
	models, err := b.client.ListModels(ctx)
	if err != nil {
		return &BackendError{Backend: b.Name(), Op: "list models", Cause: err}
	}
	for _, m := range models {
		if modelMatches(m.Name, b.opts.Model) {
			return nil
		}
	}
	return &BackendError{Backend: b.Name(), Op: "ping", Cause: ollama.ErrModelNotFound}
}

// modelMatches compares an installed model name with the configured one. A
// configured name without a tag matches the "latest" tag.
func modelMatches(installed, want string) bool {
	if installed == want {
		return true
	}
	return !strings.Contains(want, ":") && installed == want+":latest"
}

// Answer implements Backend.
func (b *OllamaBackend) Answer(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	var opts *ollama.Options
	if b.opts.MaxTokens > 0 || b.opts.Temperature > 0 {
		opts = &ollama.Options{NumPredict: b.opts.MaxTokens, Temperature: b.opts.Temperature}
	}

	resp, err := b.client.Chat(ctx, b.opts.Model, b.messages(req), opts)
	if err != nil {
		return nil, &BackendError{Backend: b.Name(), Op: "chat", Cause: err}
	}

	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		return nil, &BackendError{Backend: b.Name(), Op: "chat", Cause: ErrEmptyAnswer}
	}

	return &Result{
		Answer:            text,
		Sources:           []Source{},
		NeedsContinuation: resp.Truncated(),
		Metadata: map[string]any{
			"approach":    ApproachOllama,
			"model":       resp.Model,
			"eval_count":  resp.EvalCount,
			"duration_ms": time.Since(start).Milliseconds(),
		},
	}, nil
}

func (b *OllamaBackend) messages(req Request) []ollama.Message {
	msgs := make([]ollama.Message, 0, len(req.History)+2)
	msgs = append(msgs, ollama.NewSystemMessage(b.opts.SystemPrompt))
	for _, turn := range req.History {
		switch turn.Role {
		case RoleHuman:
			msgs = append(msgs, ollama.NewUserMessage(turn.Content))
		case RoleAI:
			msgs = append(msgs, ollama.NewAssistantMessage(turn.Content))
		}
	}
	return append(msgs, ollama.NewUserMessage(req.Question))
}
