package vectorstore

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
)

const testDim = 32

// hashEmbedder maps words into buckets so texts sharing words are similar.
type hashEmbedder struct {
	dim int
	err error
}

func (e *hashEmbedder) embed(text string) []float32 {
	v := make([]float32, e.dim)
	v[0] = 0.1
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[1+int(h.Sum32())%(e.dim-1)] += 1
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

func (e *hashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.embed(text), nil
}

var errEmbedDown = errors.New("embedder down")
