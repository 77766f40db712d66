package memo

import (
	"strings"
	"time"

	"github.com/voxnote-app/voxnote/internal/extract"
)

// Analysis is the validated form of a provider extraction result. Only
// an Analysis may be turned into a persisted memo.
type Analysis struct {
	Summary     string
	PrimaryType MemoType
	ContentBody *string
	Entities    Entities
}

// bareTimestampLayout accepts ISO 8601 stamps without a zone offset;
// they are resolved in the canonical timezone.
const bareTimestampLayout = "2006-01-02T15:04:05"

// ValidateResult gates untrusted extraction output into the domain.
// The provider can return malformed, missing, or adversarially shaped
// fields; everything is checked before any of it is trusted.
func ValidateResult(res *extract.Result, loc *time.Location) (*Analysis, *SchemaViolation) {
	if res == nil {
		return nil, &SchemaViolation{Field: "result", Reason: "missing extraction result"}
	}

	primaryType := MemoType(res.PrimaryType)
	if !primaryType.Valid() {
		return nil, &SchemaViolation{
			Field:  "primary_type",
			Reason: "must be one of SCHEDULE, TODO, IDEA, NOTE",
		}
	}

	summary := strings.TrimSpace(res.Summary)
	if summary == "" {
		return nil, &SchemaViolation{Field: "summary", Reason: "must not be empty"}
	}

	analysis := &Analysis{
		Summary:     summary,
		PrimaryType: primaryType,
	}

	if body := strings.TrimSpace(res.ContentBody); body != "" {
		analysis.ContentBody = &body
	}

	if res.Entities.TargetDate != nil {
		raw := strings.TrimSpace(*res.Entities.TargetDate)
		if raw != "" && !strings.EqualFold(raw, "null") {
			ts, err := parseTargetDate(raw, loc)
			if err != nil {
				return nil, &SchemaViolation{
					Field:  "entities.target_date",
					Reason: "must be a valid ISO 8601 timestamp",
				}
			}
			analysis.Entities.TargetDate = &ts
		}
	}

	if res.Entities.Location != nil {
		if place := strings.TrimSpace(*res.Entities.Location); place != "" {
			analysis.Entities.Location = &place
		}
	}

	for _, tag := range res.Entities.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return nil, &SchemaViolation{Field: "entities.tags", Reason: "tags must be non-empty strings"}
		}
		analysis.Entities.Tags = append(analysis.Entities.Tags, tag)
	}

	return analysis, nil
}

// parseTargetDate accepts RFC 3339 timestamps as-is; a bare stamp with
// no offset is resolved in the canonical timezone, never the host zone.
func parseTargetDate(raw string, loc *time.Location) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	return time.ParseInLocation(bareTimestampLayout, raw, loc)
}
