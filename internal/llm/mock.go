package llm

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"
)

// MockClient is a configurable summarizer for testing and local runs.
// With no SummarizeResponse set it returns the leading sentences of the
// input that fit within the limit.
type MockClient struct {
	SummarizeResponse string
	SummarizeError    error

	mu             sync.Mutex
	SummarizeCalls []string
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Summarize(ctx context.Context, text string, maxLength int) (string, error) {
	m.mu.Lock()
	m.SummarizeCalls = append(m.SummarizeCalls, text)
	m.mu.Unlock()

	if m.SummarizeError != nil {
		return "", m.SummarizeError
	}
	if m.SummarizeResponse != "" {
		return m.SummarizeResponse, nil
	}
	return leadingLines(text, maxLength), nil
}

func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SummarizeCalls)
}

// leadingLines keeps whole lines from the start of text while they fit.
func leadingLines(text string, maxLength int) string {
	var (
		sb   strings.Builder
		used int
	)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		n := utf8.RuneCountInString(line)
		if used > 0 {
			n++
		}
		if used+n > maxLength {
			break
		}
		if used > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(line)
		used += n
	}
	return sb.String()
}
