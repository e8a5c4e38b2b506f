package processor

import (
	"strings"

	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/normalizers"
	"github.com/Ramsey-B/sage/pkg/stage"
)

// ApplyMeeting returns the local field values a meeting proposes for lead: the
// extracted contact and deal fields, the progressed relationship stage, a new
// qualification score when deal context exists, the meeting date and count.
func ApplyMeeting(lead models.Lead, meeting models.ExtractedMeeting) (map[string]any, error) {
	if err := Validate(meeting); err != nil {
		return nil, err
	}

	proposed := map[string]any{}
	set := func(field, value string) {
		if v := strings.TrimSpace(value); v != "" {
			proposed[field] = v
		}
	}

	c := meeting.Contact
	set(models.FieldEmail, normalizers.NormalizeEmail(c.Email))
	set(models.FieldFirstName, c.FirstName)
	set(models.FieldLastName, c.LastName)
	set(models.FieldCompanyName, c.Company)
	set(models.FieldJobTitle, c.Title)
	set(models.FieldPhone, c.Phone)
	set(models.FieldMobilePhone, c.Mobile)

	if d := meeting.Deal; d != nil {
		if d.Budget != nil {
			proposed[models.FieldBudget] = *d.Budget
		}
		if d.DecisionDate != nil {
			proposed[models.FieldDecisionDate] = *d.DecisionDate
		}
		if d.Probability != nil {
			proposed[models.FieldProbability] = *d.Probability
		}
		set(models.FieldDecisionRole, d.DecisionRole)
		set(models.FieldIndustry, d.Industry)
		proposed[models.FieldQualificationScore] = stage.QualificationScore(d, meeting.Outcome)
	}

	proposed[models.FieldRelationshipStage] = string(stage.Progress(stage.Parse(lead.RelationshipStage), meeting.Outcome))
	proposed[models.FieldLastMeetingDate] = meeting.Outcome.MeetingDate
	proposed[models.FieldMeetingCount] = lead.MeetingCount + 1
	return proposed, nil
}
