package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func scoredCandidates(scores ...float64) []*Candidate {
	out := make([]*Candidate, len(scores))
	for i, s := range scores {
		out[i] = &Candidate{ChunkID: "c", Score: s}
	}
	return out
}

func TestConfidenceEmptyCandidates(t *testing.T) {
	got := EstimateConfidence("some answer", nil)
	assert.Equal(t, ConfidenceFloor, got)
}

func TestConfidenceEmptyAnswer(t *testing.T) {
	got := EstimateConfidence("", scoredCandidates(0.9, 0.8))
	assert.Equal(t, ConfidenceFloor, got)
}

func TestConfidenceShortAnswerFewSources(t *testing.T) {
	// base 0.5 + 0.3*avg(0.5), no length or source bonus.
	got := EstimateConfidence("brief", scoredCandidates(0.5))
	assert.InDelta(t, 0.65, got, 1e-9)
}

func TestConfidenceLengthBonus(t *testing.T) {
	long := strings.Repeat("a", 101)
	short := strings.Repeat("a", 100)

	withBonus := EstimateConfidence(long, scoredCandidates(0.5))
	without := EstimateConfidence(short, scoredCandidates(0.5))
	assert.InDelta(t, 0.1, withBonus-without, 1e-9)
}

func TestConfidenceLengthBonusCountsRunes(t *testing.T) {
	// 60 Cyrillic characters are 120 bytes; no length bonus either way.
	cyrillic := strings.Repeat("д", 60)

	got := EstimateConfidence(cyrillic, scoredCandidates(0.0))
	assert.InDelta(t, 0.5, got, 1e-9)

	// 101 characters cross the threshold regardless of script.
	long := strings.Repeat("д", 101)
	withBonus := EstimateConfidence(long, scoredCandidates(0.0))
	assert.InDelta(t, 0.6, withBonus, 1e-9)
}

func TestConfidenceCustomTerms(t *testing.T) {
	cfg := DefaultConfidenceConfig()
	cfg.SubstantiveLength = 10
	cfg.LengthBonus = 0.2

	got := cfg.Estimate(strings.Repeat("a", 11), scoredCandidates(0.0))
	assert.InDelta(t, 0.7, got, 1e-9)
}

func TestConfidenceSourceBonus(t *testing.T) {
	three := EstimateConfidence("brief", scoredCandidates(0.5, 0.5, 0.5))
	two := EstimateConfidence("brief", scoredCandidates(0.5, 0.5))
	assert.InDelta(t, 0.1, three-two, 1e-9)
}

func TestConfidenceCeiling(t *testing.T) {
	long := strings.Repeat("a", 200)
	got := EstimateConfidence(long, scoredCandidates(1.0, 1.0, 1.0, 1.0))
	// 0.5 + 0.3 + 0.1 + 0.1 = 1.0, clamped.
	assert.Equal(t, ConfidenceCeiling, got)
}

func TestConfidenceFloorClamp(t *testing.T) {
	got := EstimateConfidence("brief", scoredCandidates(-5.0))
	assert.GreaterOrEqual(t, got, ConfidenceFloor)
}
