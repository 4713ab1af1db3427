package embedding

import (
	"math"
	"testing"
)

func TestBytesRoundTrip(t *testing.T) {
	v := []float32{0.1, -0.2, 0.3, 1.0, -1.0, 0.0, 3.14159, -2.71828}
	got := FromBytes(ToBytes(v))
	if len(got) != len(v) {
		t.Fatalf("round trip length = %d, want %d", len(got), len(v))
	}
	for i := range v {
		if math.Abs(float64(got[i]-v[i])) > 1e-6 {
			t.Errorf("round trip[%d] = %v, want %v", i, got[i], v[i])
		}
	}
}

func TestFromBytesRejectsShortBlob(t *testing.T) {
	if FromBytes([]byte{1, 2, 3}) != nil {
		t.Errorf("FromBytes(3 bytes) should be nil")
	}
}

func TestCosineSimilarityIdentical(t *testing.T) {
	v := []float32{0.6, 0.8}
	if sim := CosineSimilarity(v, v); math.Abs(float64(sim)-1.0) > 1e-6 {
		t.Errorf("CosineSimilarity(v, v) = %v, want 1.0", sim)
	}
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	if sim := CosineSimilarity(a, b); math.Abs(float64(sim)) > 1e-6 {
		t.Errorf("CosineSimilarity(orthogonal) = %v, want 0", sim)
	}
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{1, 2, 3}
	if sim := CosineSimilarity(a, b); sim != 0 {
		t.Errorf("CosineSimilarity(zero, x) = %v, want 0", sim)
	}
}

func TestCosineSimilarityMismatchedLength(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{1, 2}
	if sim := CosineSimilarity(a, b); sim != 0 {
		t.Errorf("CosineSimilarity(mismatched) = %v, want 0", sim)
	}
}

func TestL2NormalizeUnitLength(t *testing.T) {
	v := []float32{3, 4}
	L2Normalize(v)
	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	if math.Abs(sumSq-1.0) > 1e-6 {
		t.Errorf("sum of squares after normalize = %v, want 1.0", sumSq)
	}
}

func TestLocalProviderDimensionsAndDeterminism(t *testing.T) {
	p := NewLocalProvider()
	v1, err := p.Embed("reviewing pull requests")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(v1) != Dimensions {
		t.Fatalf("len(v1) = %d, want %d", len(v1), Dimensions)
	}
	v2, err := p.Embed("reviewing pull requests")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if CosineSimilarity(v1, v2) < 0.999 {
		t.Errorf("same text should embed identically, got cosine %v", CosineSimilarity(v1, v2))
	}
}

func TestLocalProviderEmptyText(t *testing.T) {
	p := NewLocalProvider()
	v, err := p.Embed("")
	if err != nil {
		t.Fatalf("Embed(\"\"): %v", err)
	}
	if len(v) != Dimensions {
		t.Fatalf("len(v) = %d, want %d", len(v), Dimensions)
	}
	for i, f := range v {
		if f != 0 {
			t.Fatalf("Embed(\"\")[%d] = %v, want 0", i, f)
		}
	}
}

func TestLocalProviderRelatedTextMoreSimilarThanUnrelated(t *testing.T) {
	p := NewLocalProvider()
	a, _ := p.Embed("reviewing pull requests for style issues")
	b, _ := p.Embed("review pull requests for correctness and style")
	c, _ := p.Embed("Ferris the crab mascot represents the Rust language")

	simRelated := CosineSimilarity(a, b)
	simUnrelated := CosineSimilarity(a, c)
	if simRelated <= simUnrelated {
		t.Errorf("related similarity %v should exceed unrelated similarity %v", simRelated, simUnrelated)
	}
}

func TestLocalProviderEmbedBatchMatchesEmbed(t *testing.T) {
	p := NewLocalProvider()
	texts := []string{"alpha beta", "gamma delta"}
	batch, err := p.EmbedBatch(texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	for i, text := range texts {
		single, _ := p.Embed(text)
		if CosineSimilarity(batch[i], single) < 0.999 {
			t.Errorf("EmbedBatch[%d] diverges from Embed", i)
		}
	}
}
