package similarity

import "testing"

func TestSignIsDeterministic(t *testing.T) {
	s1 := Sign("the quick brown fox", 0)
	s2 := Sign("the quick brown fox", 0)
	if s1.Value != s2.Value {
		t.Fatalf("expected identical signatures for identical input, got %x vs %x", s1.Value, s2.Value)
	}
	if s1.TokenCount != 4 {
		t.Fatalf("expected 4 tokens, got %d", s1.TokenCount)
	}
}

func TestSignRespectsMaxTokens(t *testing.T) {
	full := Sign("a b c d e f", 0)
	capped := Sign("a b c d e f", 3)
	if capped.TokenCount != 3 {
		t.Fatalf("expected token count capped at 3, got %d", capped.TokenCount)
	}
	if full.TokenCount != 6 {
		t.Fatalf("expected full token count of 6, got %d", full.TokenCount)
	}
}

func TestHammingZeroForIdenticalSignatures(t *testing.T) {
	s := Sign("identical text", 0)
	if Hamming(s.Value, s.Value) != 0 {
		t.Fatalf("expected zero hamming distance for identical signature")
	}
}

func TestScoreIsOneForIdenticalSignatures(t *testing.T) {
	s := Sign("identical text", 0)
	if Score(s.Value, s.Value) != 1 {
		t.Fatalf("expected score 1 for identical signature, got %f", Score(s.Value, s.Value))
	}
}

func TestSimilarTextProducesCloserSignatureThanUnrelatedText(t *testing.T) {
	base := Sign("please summarize this quarterly financial report for investors", 0)
	nearDup := Sign("please summarize this quarterly financial report for our investors", 0)
	unrelated := Sign("the weather in antarctica is extremely cold in winter", 0)

	nearScore := Score(base.Value, nearDup.Value)
	farScore := Score(base.Value, unrelated.Value)

	if nearScore <= farScore {
		t.Fatalf("expected near-duplicate text to score higher than unrelated text: near=%f far=%f", nearScore, farScore)
	}
}
