package retrieval

import (
	"math"
	"time"
)

// minConfidenceWeight is the floor applied to confidence when it weights the
// BM25 term, so a low-confidence-but-strong-match row isn't buried entirely.
const minConfidenceWeight = 0.25

// recencyHalfLifeDays controls how quickly the recency bonus decays.
const recencyHalfLifeDays = 30.0

// recencyBonusScale is the maximum contribution recency can make to the
// final score, reached at age zero.
const recencyBonusScale = 0.1

// normalizeBM25 negates SQLite's raw bm25() score (more negative is a
// stronger match) and rescales it into roughly [0, 1] so higher is better.
func normalizeBM25(raw float64) float64 {
	negated := -raw
	normalized := negated / 10.0
	if normalized > 1 {
		normalized = 1
	}
	if normalized < 0 {
		normalized = 0
	}
	return normalized
}

// recencyBonus decays exponentially with age in days.
func recencyBonus(updatedAt, now time.Time) float64 {
	ageDays := now.Sub(updatedAt).Hours() / 24.0
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-ageDays/recencyHalfLifeDays) * recencyBonusScale
}

func confidenceWeight(confidence float64) float64 {
	if confidence < minConfidenceWeight {
		return minConfidenceWeight
	}
	return confidence
}

// relevanceScore implements the final score formula for relevance-mode
// search over consolidated rows: bm25_normalized * confidence_weight +
// recency_bonus.
func relevanceScore(bm25 float64, confidence float64, updatedAt, now time.Time) float64 {
	return normalizeBM25(bm25)*confidenceWeight(confidence) + recencyBonus(updatedAt, now)
}

// recencyModeScore orders consolidated rows by updated_at alone (recency
// mode, no query); recencyBonus is monotonic in age so it is reused here as
// the sort key rather than inventing a second scale.
func recencyModeScore(updatedAt, now time.Time) float64 {
	return recencyBonus(updatedAt, now)
}
