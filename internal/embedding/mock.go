package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDimensions matches text-embedding-3-small so mock vectors fit the
// same pgvector column.
const DefaultDimensions = 1536

// MockClient produces deterministic bag-of-words vectors. Texts sharing
// words get a positive cosine similarity, which is enough for local runs and
// tests.
type MockClient struct {
	dims int
}

func NewMockClient(dims int) *MockClient {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &MockClient{dims: dims}
}

func (c *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, c.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%uint32(c.dims)] += 1
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// Non-zero so cosine distance stays defined for empty input.
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}
