package matching

import (
	"sort"

	"github.com/Ramsey-B/sage/pkg/models"
)

// matchState accumulates one participant's pipeline progress. Every transition returns
// a new value; slices are copied, never appended in place.
type matchState struct {
	participant models.ParticipantRecord
	accepted    *models.MatchCandidate
	candidates  []models.MatchCandidate
	done        bool
}

func newMatchState(participant models.ParticipantRecord) matchState {
	return matchState{participant: participant}
}

// withCandidates records candidates proposed by a tier.
func (s matchState) withCandidates(candidates ...models.MatchCandidate) matchState {
	merged := make([]models.MatchCandidate, 0, len(s.candidates)+len(candidates))
	merged = append(merged, s.candidates...)
	merged = append(merged, candidates...)
	s.candidates = merged
	return s
}

// accept chooses c as the current best match.
func (s matchState) accept(c models.MatchCandidate) matchState {
	s.accepted = &c
	return s
}

// finish stops the pipeline; later tiers are skipped.
func (s matchState) finish() matchState {
	s.done = true
	return s
}

func (s matchState) hasMatch() bool {
	return s.accepted != nil
}

// beats reports whether confidence would replace the current accepted match.
func (s matchState) beats(confidence float64) bool {
	return s.accepted == nil || confidence > s.accepted.Confidence
}

// result builds the MatchResult: candidates de-duplicated per lead (highest confidence,
// earliest tier on ties), sorted by descending confidence and truncated to limit.
func (s matchState) result(limit int) models.MatchResult {
	best := make(map[string]int, len(s.candidates))
	unique := make([]models.MatchCandidate, 0, len(s.candidates))
	for _, c := range s.candidates {
		if i, ok := best[c.LeadID]; ok {
			if c.Confidence > unique[i].Confidence {
				unique[i] = c
			}
			continue
		}
		best[c.LeadID] = len(unique)
		unique = append(unique, c)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].Confidence > unique[j].Confidence
	})
	if limit > 0 && len(unique) > limit {
		unique = unique[:limit]
	}

	var match *models.MatchCandidate
	if s.accepted != nil {
		m := *s.accepted
		match = &m
	}

	return models.MatchResult{
		Participant: s.participant,
		Match:       match,
		Candidates:  unique,
	}
}

// bestOf returns the highest-confidence candidate and whether it is unambiguous, that
// is no other lead ties it.
func bestOf(candidates []models.MatchCandidate) (models.MatchCandidate, bool) {
	if len(candidates) == 0 {
		return models.MatchCandidate{}, false
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Confidence > best.Confidence {
			best = c
		}
	}

	for _, c := range candidates {
		if c.LeadID != best.LeadID && c.Confidence == best.Confidence {
			return best, false
		}
	}
	return best, true
}
