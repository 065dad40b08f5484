// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for the Ollama API.
//
// Only the non-streaming parts of the API are used: the chat answer is
// produced in full before it is rendered and returned to the browser.
//
// # Key Types
//
//   - Client: HTTP client for Ollama API communication
//   - Message: chat message with role and content
//   - ChatResponse: response structure with message and metrics
//   - ClientError: categorized error (not running, timeout, model not found)
//
// # Usage
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
//	    BaseURL:      "http://127.0.0.1:11434",
//	    DefaultModel: "qwen2.5:7b",
//	})
//	resp, err := client.Chat(ctx, "", []ollama.Message{
//	    ollama.NewSystemMessage(prompt),
//	    ollama.NewUserMessage(question),
//	}, &ollama.Options{NumPredict: 1024})
package ollama
