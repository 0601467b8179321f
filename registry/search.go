package registry

import (
	"math"
	"sort"

	"github.com/pluginrt/hostrt/toolid"
)

// Search ranks tools by cosine similarity between queryEmbedding and each
// tool's stored embedding, discarding tools with an empty embedding, and
// returns the top topK results. Ties are broken by insertion order.
func (r *Registry) Search(queryEmbedding []float32, topK int) []toolid.Descriptor {
	if topK <= 0 {
		return nil
	}

	type candidate struct {
		descriptor toolid.Descriptor
		score      float64
		order      int
	}

	candidates := make([]candidate, 0, len(r.order))
	for i, id := range r.order {
		e := r.entries[id]
		if len(e.descriptor.Embedding) == 0 {
			continue
		}
		candidates = append(candidates, candidate{
			descriptor: e.descriptor,
			score:      cosineSimilarity(queryEmbedding, e.descriptor.Embedding),
			order:      i,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].order < candidates[j].order
	})

	if topK < len(candidates) {
		candidates = candidates[:topK]
	}

	out := make([]toolid.Descriptor, len(candidates))
	for i, c := range candidates {
		out[i] = c.descriptor
	}
	return out
}

// cosineSimilarity computes dot(a,b) / (|a|*|b|), treating mismatched
// dimensions or either zero vector as no match (score 0).
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
