package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/boddenberg/central-sheets-import/internal/domain"
	"github.com/boddenberg/central-sheets-import/internal/infra/observability"
	"github.com/boddenberg/central-sheets-import/internal/service"

	"go.uber.org/zap"
)

func leadRec(index int, hearUsFrom string) domain.ExtractedRecord {
	return domain.ExtractedRecord{RowIndex: index, FirstName: "Row", HearUsFrom: hearUsFrom}
}

func TestDistinctLeadSources(t *testing.T) {
	got := service.DistinctLeadSources([]domain.ExtractedRecord{
		leadRec(1, "Google"),
		leadRec(2, " Google "),
		leadRec(3, ""),
		leadRec(4, "google"),
		leadRec(5, "Facebook"),
	})

	want := []string{"Google", "google", "Facebook"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestLeadSourceValidator_AllPresent(t *testing.T) {
	lookup := &mockLeadSources{ids: map[string]string{"Google": "ls-1", "Facebook": "ls-2"}}
	v := service.NewLeadSourceValidator(lookup, observability.NewMetrics(), zap.NewNop())

	result, err := v.Validate(context.Background(), []domain.ExtractedRecord{
		leadRec(1, "Google"), leadRec(2, "Facebook"), leadRec(3, "Google"),
	}, "HK", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.CanProceed {
		t.Error("expected batch to proceed")
	}
	if len(lookup.lookups) != 2 {
		t.Errorf("expected each distinct value looked up once, got %v", lookup.lookups)
	}
	if len(result.Existing) != 2 || len(result.Missing) != 0 {
		t.Errorf("expected 2 existing and 0 missing, got %+v", result)
	}
}

func TestLeadSourceValidator_Missing(t *testing.T) {
	lookup := &mockLeadSources{ids: map[string]string{"Google": "ls-1"}}
	v := service.NewLeadSourceValidator(lookup, observability.NewMetrics(), zap.NewNop())

	result, err := v.Validate(context.Background(), []domain.ExtractedRecord{
		leadRec(1, "Google"), leadRec(2, "Radio"), leadRec(3, "TV"), leadRec(4, "Radio"),
	}, "HK", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.CanProceed {
		t.Error("expected batch to be blocked")
	}
	if result.TotalValues != 3 {
		t.Errorf("expected 3 distinct values, got %d", result.TotalValues)
	}
	if len(result.Missing) != 2 || len(result.SuggestedStatements) != 2 {
		t.Fatalf("expected one statement per missing value, got %+v", result)
	}
	if !strings.Contains(result.SuggestedStatements[0], "'Radio'") {
		t.Errorf("expected statement for Radio first, got %s", result.SuggestedStatements[0])
	}
}

func TestLeadSourceValidator_EmptyBatchCanProceed(t *testing.T) {
	lookup := &mockLeadSources{}
	v := service.NewLeadSourceValidator(lookup, observability.NewMetrics(), zap.NewNop())

	result, err := v.Validate(context.Background(), []domain.ExtractedRecord{leadRec(1, "")}, "HK", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.CanProceed || result.TotalValues != 0 {
		t.Errorf("expected empty batch to proceed, got %+v", result)
	}
}

func TestLeadSourceValidator_LookupError(t *testing.T) {
	lookup := &mockLeadSources{err: errors.New("boom")}
	v := service.NewLeadSourceValidator(lookup, observability.NewMetrics(), zap.NewNop())

	if _, err := v.Validate(context.Background(), []domain.ExtractedRecord{leadRec(1, "Google")}, "HK", "u"); err == nil {
		t.Fatal("expected lookup error to propagate")
	}
}

func TestSuggestLeadSourceStatement(t *testing.T) {
	got := service.SuggestLeadSourceStatement("Friend's ad", "HK", "user-1")

	want := "INSERT INTO `hear_us_from` (`id`, `type`, `lead_group`, `hear_us_from`, `product`, `deleted`, `version`, " +
		"`created_by`, `updated_by`, `created_on`, `updated_on`, `branch`, `status`, `lead_source_id`) " +
		"VALUES (uuid(), 2, 38, 'Friend''s ad', 1, 0, 0, 'user-1', 'user-1', now(), now(), 'HK', 1, 'HDHK_Friend_s_ad');"
	if got != want {
		t.Errorf("unexpected statement:\n got: %s\nwant: %s", got, want)
	}
}

func TestSuggestLeadSourceStatement_EscapesBackslash(t *testing.T) {
	got := service.SuggestLeadSourceStatement(`a\b`, "HK", "u")
	if !strings.Contains(got, `'a\\b'`) {
		t.Errorf("expected backslash to be escaped, got %s", got)
	}
}
