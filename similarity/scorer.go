package similarity

// EmbeddingScorer is an optional pluggable collaborator: when both the
// request and a candidate carry embeddings and a scorer is configured, its
// score is preferred over the hamming-distance default.
type EmbeddingScorer interface {
	Score(a, b []float32) float64
}

// ScoreCandidate scores candidate against the request signature and
// (optional) embedding, preferring an embedding scorer when both sides
// carry embeddings and one is configured.
func ScoreCandidate(reqSig uint64, reqEmbedding []float32, candidate Entry, scorer EmbeddingScorer) float64 {
	if scorer != nil && len(reqEmbedding) > 0 && len(candidate.Embedding) > 0 {
		return scorer.Score(reqEmbedding, candidate.Embedding)
	}
	return Score(reqSig, candidate.Signature)
}
