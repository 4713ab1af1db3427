package embedding

import (
	"hash/fnv"

	"github.com/yologdev/yocore-go/internal/similarity"
)

// LocalProvider is the default, dependency-free embedding provider: a
// feature-hashed bag-of-tokens vector, L2-normalized to Dimensions.
//
// No library in the example corpus loads or runs a transformer model (the
// original used candle + a downloaded all-MiniLM-L6-v2 checkpoint); this is
// the stdlib-justified fallback documented in DESIGN.md. It reuses the
// tokenizer already built for near-duplicate detection so semantically
// related text hashes into overlapping buckets, giving cosine similarity
// signal cheap enough to run inline with no network or model download.
type LocalProvider struct{}

// NewLocalProvider returns the default hashing embedder.
func NewLocalProvider() *LocalProvider { return &LocalProvider{} }

func (p *LocalProvider) Embed(text string) ([]float32, error) {
	tokens := similarity.Tokenize(text)
	v := make([]float32, Dimensions)
	if len(tokens) == 0 {
		return v, nil
	}

	for _, tok := range tokens {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		bucket := h.Sum32() % Dimensions

		signH := fnv.New32a()
		_, _ = signH.Write([]byte(tok))
		_, _ = signH.Write([]byte{0xff})
		sign := float32(1)
		if signH.Sum32()%2 == 1 {
			sign = -1
		}

		v[bucket] += sign
	}

	L2Normalize(v)
	return v, nil
}

func (p *LocalProvider) EmbedBatch(texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := p.Embed(text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (p *LocalProvider) Dims() int { return Dimensions }
