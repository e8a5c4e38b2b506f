package conflicts

import "github.com/Ramsey-B/sage/pkg/models"

// identityFields decide who the lead is; a wrong value merges two people.
var identityFields = map[string]bool{
	models.FieldEmail:       true,
	models.FieldFirstName:   true,
	models.FieldLastName:    true,
	models.FieldCompanyName: true,
}

// operationalFields drive outreach and forecasting.
var operationalFields = map[string]bool{
	models.FieldPhone:        true,
	models.FieldMobilePhone:  true,
	models.FieldJobTitle:     true,
	"title":                  true,
	models.FieldBudget:       true,
	models.FieldDecisionDate: true,
}

// SeverityFor classifies a local field name. Unlisted fields are low.
func SeverityFor(field string) models.Severity {
	switch {
	case identityFields[field]:
		return models.SeverityHigh
	case operationalFields[field]:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}
