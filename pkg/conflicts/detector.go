// Package conflicts compares a lead's local field values with the external system's copy
// and records every disagreement as a typed, ranked FieldConflict.
package conflicts

import (
	"context"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/jmespath/go-jmespath"

	"github.com/Ramsey-B/sage/pkg/metrics"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// Detector holds a read-only field mapping. Use WithMapping to switch mappings.
type Detector struct {
	logger  ectologger.Logger
	mapping models.FieldMapping
}

func NewDetector(logger ectologger.Logger, mapping models.FieldMapping) *Detector {
	return &Detector{
		logger:  logger,
		mapping: mapping,
	}
}

// WithMapping returns a detector using mapping; d is unchanged.
func (d *Detector) WithMapping(mapping models.FieldMapping) *Detector {
	return NewDetector(d.logger, mapping)
}

func (d *Detector) Mapping() models.FieldMapping {
	return d.mapping
}

// DetectLead compares a stored lead with its external snapshot.
func (d *Detector) DetectLead(ctx context.Context, lead models.Lead, snapshot map[string]any) []models.FieldConflict {
	return d.Detect(ctx, lead.ID, lead.Fields(), snapshot)
}

// Detect compares local values (keyed by local field) with the snapshot (keyed by
// external field) for every mapped field the snapshot carries. Fields absent from the
// snapshot are skipped; a local field absent from local counts as null.
func (d *Detector) Detect(ctx context.Context, leadID string, local map[string]any, snapshot map[string]any) []models.FieldConflict {
	_, span := tracing.StartSpan(ctx, "conflicts.Detector.Detect")
	defer span.End()

	var conflicts []models.FieldConflict
	for _, field := range d.mapping.LocalFields() {
		externalField, _ := d.mapping.External(field)
		externalValue, ok := lookup(snapshot, externalField)
		if !ok {
			continue
		}
		localValue := local[field]

		normLocal, normExternal := normalizePair(field, localValue, externalValue)
		conflictType := classify(normLocal, normExternal)
		if conflictType == "" {
			continue
		}

		severity := SeverityFor(field)
		conflicts = append(conflicts, models.FieldConflict{
			LeadID:           leadID,
			Field:            field,
			ExternalField:    externalField,
			LocalValue:       localValue,
			ExternalValue:    externalValue,
			ConflictType:     conflictType,
			Severity:         severity,
			ResolutionStatus: models.ResolutionPending,
		})
		metrics.ConflictsDetectedTotal.WithLabelValues(string(conflictType), string(severity)).Inc()
	}

	if len(conflicts) > 0 {
		d.logger.WithContext(ctx).WithFields(map[string]any{
			"lead_id":   leadID,
			"conflicts": len(conflicts),
		}).Debug("Detected field conflicts")
	}
	return conflicts
}

// lookup reads a flat key first. Names that look like paths (Account.Name, Phones[0])
// are then evaluated as JMESPath; a path that selects nothing is absent.
func lookup(snapshot map[string]any, name string) (any, bool) {
	if v, ok := snapshot[name]; ok {
		return v, true
	}
	if !strings.ContainsAny(name, ".[") {
		return nil, false
	}

	v, err := jmespath.Search(name, snapshot)
	if err != nil || v == nil {
		return nil, false
	}
	return v, true
}
