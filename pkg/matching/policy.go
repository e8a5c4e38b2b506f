package matching

// Policy holds the fixed thresholds and weights of the tier pipeline. It is passed by
// value into the engine and never mutated.
type Policy struct {
	HighThreshold   float64 // tier 2 accepts at or above (default: 0.85)
	MediumThreshold float64 // tiers 3-4 accept at or above (default: 0.65)
	LowThreshold    float64 // tier 5 accepts at or above (default: 0.40)

	NameWeight    float64 // name share of name+company scores (default: 0.7)
	CompanyWeight float64 // company share of name+company scores (default: 0.3)

	DomainBase          float64 // domain tier base confidence (default: 0.7)
	DomainCompanyBoost  float64 // added times company similarity (default: 0.2)
	GenericDomainFactor float64 // multiplier for generic domains (default: 0.8)
	DomainCap           float64 // domain tier ceiling (default: 0.95)

	// MaxInferredConfidence caps every tier except exact email so that only an exact
	// email match reports 1.0 (default: 0.99).
	MaxInferredConfidence float64

	SocialWeight float64 // enrichment share when blending (default: 0.3)

	MaxCandidates int // candidate list length limit (default: 25)
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{
		HighThreshold:         0.85,
		MediumThreshold:       0.65,
		LowThreshold:          0.40,
		NameWeight:            0.7,
		CompanyWeight:         0.3,
		DomainBase:            0.7,
		DomainCompanyBoost:    0.2,
		GenericDomainFactor:   0.8,
		DomainCap:             0.95,
		MaxInferredConfidence: 0.99,
		SocialWeight:          0.3,
		MaxCandidates:         25,
	}
}

// normalized replaces out-of-range values with defaults.
func (p Policy) normalized() Policy {
	d := DefaultPolicy()

	if !(p.HighThreshold > p.MediumThreshold && p.MediumThreshold > p.LowThreshold &&
		p.LowThreshold > 0 && p.HighThreshold <= 1) {
		p.HighThreshold, p.MediumThreshold, p.LowThreshold = d.HighThreshold, d.MediumThreshold, d.LowThreshold
	}
	if p.NameWeight <= 0 || p.CompanyWeight < 0 || p.NameWeight+p.CompanyWeight > 1.0001 {
		p.NameWeight, p.CompanyWeight = d.NameWeight, d.CompanyWeight
	}
	if p.DomainBase <= 0 || p.DomainBase > 1 {
		p.DomainBase = d.DomainBase
	}
	if p.DomainCompanyBoost < 0 {
		p.DomainCompanyBoost = d.DomainCompanyBoost
	}
	if p.GenericDomainFactor <= 0 || p.GenericDomainFactor > 1 {
		p.GenericDomainFactor = d.GenericDomainFactor
	}
	if p.DomainCap <= 0 || p.DomainCap >= 1 {
		p.DomainCap = d.DomainCap
	}
	if p.MaxInferredConfidence <= p.HighThreshold || p.MaxInferredConfidence >= 1 {
		p.MaxInferredConfidence = d.MaxInferredConfidence
	}
	if p.SocialWeight < 0 || p.SocialWeight > 1 {
		p.SocialWeight = d.SocialWeight
	}
	if p.MaxCandidates <= 0 {
		p.MaxCandidates = d.MaxCandidates
	}
	return p
}
