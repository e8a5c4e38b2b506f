package matching

import (
	"sort"

	"github.com/Ramsey-B/sage/pkg/models"
)

// Blend folds a social enrichment record into the chosen match as
// (1-w)*original + w*social. Exact email matches are left at 1.0.
func (e *Engine) Blend(result models.MatchResult, enrichment *models.EnrichmentRecord) models.MatchResult {
	if enrichment == nil || result.Match == nil || result.Match.MatchType == models.MatchTypeExactEmail {
		return result
	}

	social := min(max(enrichment.Confidence, 0), 1)
	blended := *result.Match
	blended.Confidence = e.capped((1-e.policy.SocialWeight)*blended.Confidence + e.policy.SocialWeight*social)
	blended.MatchType = models.MatchTypeSocialEnhanced

	candidates := make([]models.MatchCandidate, len(result.Candidates))
	copy(candidates, result.Candidates)
	for i := range candidates {
		if candidates[i].LeadID == blended.LeadID {
			candidates[i] = blended
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	result.Match = &blended
	result.Candidates = candidates
	return result
}
