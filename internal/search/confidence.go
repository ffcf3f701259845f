package search

import "unicode/utf8"

const (
	// ConfidenceFloor is the minimum estimate, also returned when
	// retrieval or generation produced nothing.
	ConfidenceFloor = 0.1

	// ConfidenceCeiling caps the estimate; the heuristic is never certain.
	ConfidenceCeiling = 0.95
)

// ConfidenceConfig holds the tunable terms of the confidence heuristic.
// The estimate is a blend of retrieval scores and answer shape, not a
// calibrated probability.
type ConfidenceConfig struct {
	// Base is the starting estimate before any bonus.
	Base float64

	// ScoreWeight scales the average top-candidate score.
	ScoreWeight float64

	// LengthBonus rewards answers longer than SubstantiveLength runes.
	LengthBonus       float64
	SubstantiveLength int

	// SourceBonus rewards answers drawing on at least SourceThreshold
	// candidates.
	SourceBonus     float64
	SourceThreshold int

	// Floor and Ceiling clamp the estimate.
	Floor   float64
	Ceiling float64
}

// DefaultConfidenceConfig returns the default heuristic terms.
func DefaultConfidenceConfig() ConfidenceConfig {
	return ConfidenceConfig{
		Base:              0.5,
		ScoreWeight:       0.3,
		LengthBonus:       0.1,
		SubstantiveLength: 100,
		SourceBonus:       0.1,
		SourceThreshold:   3,
		Floor:             ConfidenceFloor,
		Ceiling:           ConfidenceCeiling,
	}
}

// Estimate scores how trustworthy an answer is, given the candidates
// that supported it. Answer length is counted in runes; the corpus is
// mostly Cyrillic and byte counts would double it.
//
// Empty candidates or an empty answer yield exactly the floor.
func (cfg ConfidenceConfig) Estimate(answer string, candidates []*Candidate) float64 {
	if len(candidates) == 0 || answer == "" {
		return cfg.Floor
	}

	var sum float64
	for _, c := range candidates {
		sum += c.Score
	}
	avg := sum / float64(len(candidates))

	confidence := cfg.Base + cfg.ScoreWeight*avg
	if utf8.RuneCountInString(answer) > cfg.SubstantiveLength {
		confidence += cfg.LengthBonus
	}
	if len(candidates) >= cfg.SourceThreshold {
		confidence += cfg.SourceBonus
	}

	if confidence < cfg.Floor {
		return cfg.Floor
	}
	if confidence > cfg.Ceiling {
		return cfg.Ceiling
	}
	return confidence
}

// EstimateConfidence applies the default heuristic terms.
func EstimateConfidence(answer string, candidates []*Candidate) float64 {
	return DefaultConfidenceConfig().Estimate(answer, candidates)
}
