package matching

import (
	"strings"

	"github.com/Ramsey-B/sage/pkg/normalizers"
)

// minPhoneDigits is the shortest number considered for partial phone matching.
const minPhoneDigits = 7

// companySuffixes are legal-form words ignored when comparing company names.
var companySuffixes = map[string]bool{
	"inc": true, "incorporated": true, "corp": true, "corporation": true, "co": true,
	"company": true, "llc": true, "ltd": true, "limited": true, "plc": true, "gmbh": true,
	"sa": true, "ag": true, "bv": true,
}

// Scorer provides the fuzzy comparison primitives shared by every tier
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Ratio returns the Ratcliff/Obershelp similarity of a and b in [0,1], case-insensitive
// and whitespace-trimmed. Two empty strings are identical.
func (s *Scorer) Ratio(a, b string) float64 {
	ra := []rune(strings.ToLower(strings.TrimSpace(a)))
	rb := []rune(strings.ToLower(strings.TrimSpace(b)))

	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}
	return 2.0 * float64(matchingCharacters(ra, rb)) / float64(total)
}

// matchingCharacters sums the lengths of the longest common blocks found by recursively
// splitting around the longest common substring.
func matchingCharacters(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	startA, startB, size := longestCommonBlock(a, b)
	if size == 0 {
		return 0
	}

	return size +
		matchingCharacters(a[:startA], b[:startB]) +
		matchingCharacters(a[startA+size:], b[startB+size:])
}

// longestCommonBlock finds the longest common substring, preferring the earliest in a
// and then in b.
func longestCommonBlock(a, b []rune) (int, int, int) {
	bestA, bestB, bestSize := 0, 0, 0

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > bestSize {
					bestSize = curr[j]
					bestA = i - curr[j]
					bestB = j - curr[j]
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}

	return bestA, bestB, bestSize
}

// NameSimilarity compares two person names as the max of the whole-string ratio and
// the average of the first-token and last-token ratios.
func (s *Scorer) NameSimilarity(a, b string) float64 {
	ta := normalizers.NameTokens(a)
	tb := normalizers.NameTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}

	whole := s.Ratio(strings.Join(ta, " "), strings.Join(tb, " "))
	tokens := (s.Ratio(ta[0], tb[0]) + s.Ratio(ta[len(ta)-1], tb[len(tb)-1])) / 2

	return max(whole, tokens)
}

// CompanySimilarity compares company names with and without legal-form suffixes.
func (s *Scorer) CompanySimilarity(a, b string) float64 {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return 0.0
	}

	raw := s.Ratio(a, b)
	ca, cb := coreCompanyName(a), coreCompanyName(b)
	if ca == "" || cb == "" {
		return raw
	}
	return max(raw, s.Ratio(ca, cb))
}

func coreCompanyName(name string) string {
	words := strings.Fields(normalizers.RemovePunctuation(strings.ToLower(name)))
	kept := words[:0]
	for _, w := range words {
		if !companySuffixes[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// PhoneMatch scores two phone numbers: 1.0 when normalized-equal, 0.8 when one contains
// the other, 0.7 when the last seven digits agree, else 0.
func (s *Scorer) PhoneMatch(a, b string) float64 {
	na := normalizers.NormalizePhone(a)
	nb := normalizers.NormalizePhone(b)
	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}

	shorter, longer := na, nb
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) >= minPhoneDigits && strings.Contains(longer, shorter) {
		return 0.8
	}
	if len(na) >= minPhoneDigits && len(nb) >= minPhoneDigits &&
		na[len(na)-minPhoneDigits:] == nb[len(nb)-minPhoneDigits:] {
		return 0.7
	}
	return 0.0
}

// LastDigits returns the trailing phone digits used to look up phone candidates.
func LastDigits(phone string) string {
	n := normalizers.NormalizePhone(phone)
	if len(n) < minPhoneDigits {
		return ""
	}
	return n[len(n)-minPhoneDigits:]
}
