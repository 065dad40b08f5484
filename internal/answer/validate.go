// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package answer

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Validation errors. Use errors.Is against these; the error text of a
// returned *QuestionError is safe to show to the user.
var (
	ErrEmptyQuestion   = errors.New("empty question")
	ErrQuestionTooLong = errors.New("question too long")
	ErrOffTopic        = errors.New("question off topic")
)

// QuestionError is a user facing validation failure.
type QuestionError struct {
	Kind    error
	Message string
}

func (e *QuestionError) Error() string { return e.Message }
func (e *QuestionError) Unwrap() error { return e.Kind }

// tokensPerWord approximates tokens from a whitespace word count.
const tokensPerWord = 1.3

// Limits bound what questions are accepted.
type Limits struct {
	MaxChars  int
	MaxTokens int
	// Blocked rejects questions matching any pattern (case insensitive).
	Blocked []*regexp.Regexp
}

// DefaultLimits returns 1000 characters / 1000 estimated tokens.
func DefaultLimits() Limits {
	return Limits{MaxChars: 1000, MaxTokens: 1000}
}

// CompileBlocked compiles blocked-question patterns.
func CompileBlocked(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("blocked pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// EstimateTokens approximates the token count of text as words × 1.3.
func EstimateTokens(text string) float64 {
	return float64(len(strings.Fields(text))) * tokensPerWord
}

// Validate normalizes (NFKC, trimmed) and checks a question. It returns
// the normalized question or a *QuestionError.
func Validate(question string, limits Limits) (string, error) {
	q := strings.TrimSpace(norm.NFKC.String(question))
	if q == "" {
		return "", &QuestionError{Kind: ErrEmptyQuestion, Message: "Pertanyaan tidak boleh kosong"}
	}

	if limits.MaxChars > 0 && utf8.RuneCountInString(q) > limits.MaxChars {
		return "", &QuestionError{
			Kind:    ErrQuestionTooLong,
			Message: fmt.Sprintf("Pertanyaan terlalu panjang. Maksimal %d karakter.", limits.MaxChars),
		}
	}
	if limits.MaxTokens > 0 && EstimateTokens(q) > float64(limits.MaxTokens) {
		words := int(math.Floor(float64(limits.MaxTokens) / tokensPerWord))
		return "", &QuestionError{
			Kind:    ErrQuestionTooLong,
			Message: fmt.Sprintf("Pertanyaan terlalu panjang. Maksimal sekitar %d kata.", words),
		}
	}

	for _, re := range limits.Blocked {
		if re.MatchString(q) {
			return "", &QuestionError{
				Kind:    ErrOffTopic,
				Message: "Pertanyaan harus terkait dengan topik layanan ini.",
			}
		}
	}
	return q, nil
}
