// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package answer produces chat answers.
//
// A Backend turns a question (plus the session's recent history) into a
// Result: markdown answer text, optional document sources, an optional
// confidence score and a continuation flag. The Service validates
// questions, stamps every result with a run ID and converts backend
// failures into the standard apology result.
//
// # Key Types
//
//   - Backend: answer source interface
//   - OllamaBackend: answers with a local Ollama model
//   - HTTPBackend: forwards to an external retrieval (RAG) service
//   - Service: validation, run IDs and failure handling around a Backend
//   - Result, Source: the answer payload returned to the browser
//
// # Usage
//
//	svc := answer.NewService(answer.NewOllamaBackend(client, answer.OllamaOptions{}),
//	    answer.DefaultLimits(), logger)
//	q, err := svc.Validate(question)
//	if errors.Is(err, answer.ErrQuestionTooLong) {
//	    // 400
//	}
//	res, err := svc.Answer(ctx, answer.Request{SessionID: id, Question: q, History: turns})
package answer
