package service

import (
	"context"
	"time"

	"github.com/boddenberg/central-sheets-import/internal/domain"
	"github.com/boddenberg/central-sheets-import/internal/infra/observability"
	"github.com/boddenberg/central-sheets-import/internal/port"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DuplicateDetector flags records whose email or phone already exists in the
// store or earlier in the same batch.
type DuplicateDetector struct {
	lookup  port.ContactLookup
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewDuplicateDetector creates a detector backed by the given lookup.
func NewDuplicateDetector(lookup port.ContactLookup, metrics *observability.Metrics, logger *zap.Logger) *DuplicateDetector {
	return &DuplicateDetector{lookup: lookup, metrics: metrics, logger: logger}
}

// Check queries the store once for all emails and once for all phones, then
// classifies the batch.
func (d *DuplicateDetector) Check(ctx context.Context, records []domain.ExtractedRecord) (*domain.DuplicateReport, error) {
	ctx, span := tracer.Start(ctx, "DuplicateDetector.Check")
	defer span.End()

	start := time.Now()
	defer func() { d.metrics.RecordStageDuration("duplicates", time.Since(start)) }()

	emails, phones := distinctContacts(records)

	var existingEmails, existingPhones map[string]string
	g, gctx := errgroup.WithContext(ctx)
	if len(emails) > 0 {
		g.Go(func() error {
			found, err := d.lookup.ExistingEmails(gctx, emails)
			existingEmails = found
			return err
		})
	}
	if len(phones) > 0 {
		g.Go(func() error {
			found, err := d.lookup.ExistingPhones(gctx, phones)
			existingPhones = found
			return err
		})
	}
	if err := g.Wait(); err != nil {
		d.logger.Error("duplicate lookup failed", zap.Error(err))
		return nil, err
	}

	report := DetectDuplicates(records, existingEmails, existingPhones)
	d.metrics.IncrRows("duplicate", len(report.Duplicates))

	d.logger.Info("duplicate check completed",
		zap.Int("total_rows", len(records)),
		zap.Int("duplicate_rows", len(report.Duplicates)),
		zap.Int("new_rows", len(report.New)),
	)
	return report, nil
}

// DetectDuplicates classifies records against the existing contacts
// (value -> profile id). External matches are checked before intra-batch ones
// and email before phone. Only records that survive mark their contacts as seen.
func DetectDuplicates(records []domain.ExtractedRecord, existingEmails, existingPhones map[string]string) *domain.DuplicateReport {
	report := &domain.DuplicateReport{
		New:        make([]domain.ExtractedRecord, 0, len(records)),
		Duplicates: []domain.DuplicateVerdict{},
		Verdicts:   make([]domain.DuplicateVerdict, 0, len(records)),
	}
	seenEmails := make(map[string]struct{})
	seenPhones := make(map[string]struct{})

	for _, rec := range records {
		v := domain.DuplicateVerdict{RowIndex: rec.RowIndex}

		switch {
		case rec.Email != "" && has(existingEmails, rec.Email):
			v.IsDuplicate, v.Reason, v.MatchedExternalID = true, domain.ReasonEmailExists, existingEmails[rec.Email]
		case rec.Phone != "" && has(existingPhones, rec.Phone):
			v.IsDuplicate, v.Reason, v.MatchedExternalID = true, domain.ReasonPhoneExists, existingPhones[rec.Phone]
		case seen(seenEmails, rec.Email) || seen(seenPhones, rec.Phone):
			v.IsDuplicate, v.Reason = true, domain.ReasonDuplicateInBatch
		}

		report.Verdicts = append(report.Verdicts, v)
		if v.IsDuplicate {
			report.Duplicates = append(report.Duplicates, v)
			continue
		}

		if rec.Email != "" {
			seenEmails[rec.Email] = struct{}{}
		}
		if rec.Phone != "" {
			seenPhones[rec.Phone] = struct{}{}
		}
		report.New = append(report.New, rec)
	}
	return report
}

func has(m map[string]string, key string) bool {
	_, ok := m[key]
	return ok
}

func seen(set map[string]struct{}, key string) bool {
	if key == "" {
		return false
	}
	_, ok := set[key]
	return ok
}

func distinctContacts(records []domain.ExtractedRecord) (emails, phones []string) {
	seenE := make(map[string]struct{})
	seenP := make(map[string]struct{})
	for _, r := range records {
		if r.Email != "" {
			if _, ok := seenE[r.Email]; !ok {
				seenE[r.Email] = struct{}{}
				emails = append(emails, r.Email)
			}
		}
		if r.Phone != "" {
			if _, ok := seenP[r.Phone]; !ok {
				seenP[r.Phone] = struct{}{}
				phones = append(phones, r.Phone)
			}
		}
	}
	return emails, phones
}
