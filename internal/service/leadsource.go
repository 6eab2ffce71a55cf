package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/central-sheets-import/internal/domain"
	"github.com/boddenberg/central-sheets-import/internal/infra/observability"
	"github.com/boddenberg/central-sheets-import/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// LeadSourceValidator checks that every hear_us_from value in a batch has an
// active reference record for the branch. It never creates records itself.
type LeadSourceValidator struct {
	lookup  port.LeadSourceLookup
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewLeadSourceValidator creates a validator backed by the given lookup.
func NewLeadSourceValidator(lookup port.LeadSourceLookup, metrics *observability.Metrics, logger *zap.Logger) *LeadSourceValidator {
	return &LeadSourceValidator{lookup: lookup, metrics: metrics, logger: logger}
}

// Validate looks up each distinct value once. A batch without values can proceed.
func (v *LeadSourceValidator) Validate(ctx context.Context, records []domain.ExtractedRecord, branch, systemUserID string) (*domain.LeadSourceValidation, error) {
	ctx, span := tracer.Start(ctx, "LeadSourceValidator.Validate")
	defer span.End()

	start := time.Now()
	defer func() { v.metrics.RecordStageDuration("lead_sources", time.Since(start)) }()

	values := DistinctLeadSources(records)
	span.SetAttributes(attribute.Int("lead_sources.distinct", len(values)))

	result := &domain.LeadSourceValidation{
		TotalValues:         len(values),
		Existing:            []domain.LeadSource{},
		Missing:             []string{},
		SuggestedStatements: []string{},
	}

	for _, value := range values {
		found, err := v.lookup.FindLeadSource(ctx, value, branch)
		if err != nil {
			v.logger.Error("lead source lookup failed",
				zap.String("hear_us_from", value),
				zap.Error(err),
			)
			return nil, err
		}
		if found == nil {
			v.metrics.IncrLeadSourceCheck("missing")
			result.Missing = append(result.Missing, value)
			result.SuggestedStatements = append(result.SuggestedStatements, SuggestLeadSourceStatement(value, branch, systemUserID))
			continue
		}
		v.metrics.IncrLeadSourceCheck("found")
		result.Existing = append(result.Existing, *found)
	}

	result.CanProceed = len(result.Missing) == 0
	if !result.CanProceed {
		v.logger.Warn("missing lead sources",
			zap.String("branch", branch),
			zap.Strings("missing", result.Missing),
		)
	}
	return result, nil
}

// DistinctLeadSources returns the trimmed, non-blank hear_us_from values in
// first-appearance order. Matching is case-sensitive.
func DistinctLeadSources(records []domain.ExtractedRecord) []string {
	seen := make(map[string]struct{})
	var values []string
	for _, r := range records {
		v := strings.TrimSpace(r.HearUsFrom)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	return values
}

// SuggestLeadSourceStatement renders the insert an operator runs to create the
// missing reference record. The statement is advisory and never executed here.
func SuggestLeadSourceStatement(value, branch, systemUserID string) string {
	return fmt.Sprintf(
		"INSERT INTO `hear_us_from` (`id`, `type`, `lead_group`, `hear_us_from`, `product`, `deleted`, `version`, "+
			"`created_by`, `updated_by`, `created_on`, `updated_on`, `branch`, `status`, `lead_source_id`) "+
			"VALUES (uuid(), 2, %d, %s, 1, 0, 0, %s, %s, now(), now(), %s, 1, %s);",
		domain.LeadSourceDefaultGroup,
		sqlQuote(value),
		sqlQuote(systemUserID),
		sqlQuote(systemUserID),
		sqlQuote(branch),
		sqlQuote(leadSourceID(value)),
	)
}

func leadSourceID(value string) string {
	return domain.LeadSourceIDPrefix + strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, value)
}

var sqlEscaper = strings.NewReplacer(`\`, `\\`, `'`, `''`)

func sqlQuote(s string) string {
	return "'" + sqlEscaper.Replace(s) + "'"
}
