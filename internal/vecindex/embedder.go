// Package vecindex provides semantic search over note content. Notes are
// embedded into fixed-size vectors and indexed either in SQLite via the
// sqlite-vec extension or in process memory.
package vecindex

import (
	"hash/fnv"
	"math"
	"strings"
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(text string) ([]float32, error)
	Dimensions() int
}

// DefaultDimensions is the vector size of the built-in local embedder.
const DefaultDimensions = 512

// LocalEmbedder produces embeddings on device with no API dependency, using
// feature hashing over word unigrams and bigrams. Not competitive with model
// embeddings, but deterministic, free, and good enough for note retrieval.
type LocalEmbedder struct {
	dimensions int
}

// NewLocalEmbedder creates a local embedder. A dimensions value of zero or
// less selects DefaultDimensions.
func NewLocalEmbedder(dimensions int) *LocalEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &LocalEmbedder{dimensions: dimensions}
}

// Dimensions returns the embedding vector size.
func (e *LocalEmbedder) Dimensions() int { return e.dimensions }

// Embed hashes word unigrams and bigrams into the vector and l2-normalizes
// it, so cosine similarity reduces to a dot product.
func (e *LocalEmbedder) Embed(text string) ([]float32, error) {
	vec := make([]float32, e.dimensions)
	words := tokenize(text)
	if len(words) == 0 {
		return vec, nil
	}

	for i, w := range words {
		if stopwords[w] {
			continue
		}
		addFeature(vec, w, 1.0)
		if i+1 < len(words) {
			addFeature(vec, w+" "+words[i+1], 0.5)
		}
	}

	normalize(vec)
	return vec, nil
}

// addFeature hashes the token to two positions, the second with opposite
// sign, which reduces collision bias in the hashed space.
func addFeature(vec []float32, token string, weight float32) {
	dims := len(vec)
	vec[hashToken(token)%uint32(dims)] += weight
	vec[hashToken(token+"\x00")%uint32(dims)] -= weight * 0.5
}

func hashToken(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

var punctReplacer = strings.NewReplacer(
	".", " ", ",", " ", "!", " ", "?", " ", ";", " ", ":", " ",
	"'", " ", "\"", " ", "(", " ", ")", " ", "[", " ", "]", " ",
	"{", " ", "}", " ", "#", " ", "`", " ", "*", " ", "\n", " ", "\t", " ",
)

func tokenize(text string) []string {
	fields := strings.Fields(punctReplacer.Replace(strings.ToLower(text)))
	out := fields[:0]
	for _, w := range fields {
		if len(w) > 1 {
			out = append(out, w)
		}
	}
	return out
}

var stopwords = func() map[string]bool {
	words := []string{
		"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for",
		"of", "with", "by", "from", "as", "is", "was", "are", "were", "be",
		"been", "it", "its", "this", "that", "these", "those", "not", "no",
		"so", "than", "too", "very", "just", "also", "now", "here", "have",
		"has", "had", "do", "does", "did", "will", "would", "can", "could",
	}
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}()

func normalize(v []float32) {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
}

func cosineSimilarity(a, b []float32) float64 {
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
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
