// Package embedding produces fixed-dimension, L2-normalized float32 vectors
// and (de)serializes them for SQLite BLOB storage, per spec.md §4.C. The
// byte layout (little-endian float32, no header) and cosine similarity are
// ported from original_source/src/embeddings/mod.rs and cross-checked
// against the teacher's encodeEmbedding/decodeEmbedding/cosineSimilarity in
// internal/memory/learning.go.
package embedding

import (
	"encoding/binary"
	"math"
)

// Dimensions is the fixed embedding width used across the system.
const Dimensions = 384

// Provider produces fixed-dimension embeddings. LocalProvider holds no
// mutable state; LMStudioProvider records the width of each response it
// receives as its Dims.
type Provider interface {
	Embed(text string) ([]float32, error)
	EmbedBatch(texts []string) ([][]float32, error)
	Dims() int
}

// ToBytes serializes an embedding to little-endian float32 bytes, no header.
func ToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// FromBytes deserializes a little-endian float32 blob back into a vector.
// Returns nil if the blob length is not a multiple of 4.
func FromBytes(blob []byte) []float32 {
	if len(blob)%4 != 0 {
		return nil
	}
	v := make([]float32, len(blob)/4)
	for i := range v {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		v[i] = math.Float32frombits(bits)
	}
	return v
}

// CosineSimilarity returns the cosine similarity of a and b, 0 for
// zero-length or mismatched-length vectors or zero-norm vectors.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// L2Normalize scales v in place to unit length; a zero vector is left as-is.
func L2Normalize(v []float32) {
	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	if sumSq == 0 {
		return
	}
	norm := math.Sqrt(sumSq)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}
