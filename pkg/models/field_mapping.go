package models

import "sort"

// FieldMapping maps local lead field names to external field names. It is built once
// and never mutated.
type FieldMapping struct {
	entries map[string]string
}

// NewFieldMapping copies entries into a read-only mapping.
func NewFieldMapping(entries map[string]string) FieldMapping {
	copied := make(map[string]string, len(entries))
	for local, external := range entries {
		if local == "" || external == "" {
			continue
		}
		copied[local] = external
	}
	return FieldMapping{entries: copied}
}

// DefaultLeadFieldMapping is the built-in mapping for the lead entity.
func DefaultLeadFieldMapping() FieldMapping {
	return NewFieldMapping(map[string]string{
		FieldFirstName:          "Name",
		FieldLastName:           "Surname",
		FieldEmail:              "Email",
		FieldPhone:              "BusinessPhone",
		FieldMobilePhone:        "MobilePhone",
		FieldCompanyName:        "Account",
		FieldJobTitle:           "Title",
		FieldStatus:             "Status",
		FieldQualificationScore: "Score",
		FieldBudget:             "Budget",
		FieldDecisionDate:       "DecisionDate",
		FieldProbability:        "Probability",
		FieldSource:             "LeadSource",
		FieldRelationshipStage:  "Stage",
		FieldDecisionRole:       "DecisionRole",
		FieldIndustry:           "Industry",
		FieldLastMeetingDate:    "LastMeetingDate",
		FieldMeetingCount:       "MeetingCount",
	})
}

// External returns the external field name for a local field.
func (m FieldMapping) External(local string) (string, bool) {
	external, ok := m.entries[local]
	return external, ok
}

// LocalFields returns the mapped local field names in sorted order.
func (m FieldMapping) LocalFields() []string {
	fields := make([]string, 0, len(m.entries))
	for local := range m.entries {
		fields = append(fields, local)
	}
	sort.Strings(fields)
	return fields
}

func (m FieldMapping) Len() int {
	return len(m.entries)
}
