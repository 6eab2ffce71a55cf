package service

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/central-sheets-import/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
)

// FieldExtractor turns raw sheet rows into typed records.
type FieldExtractor struct {
	now    func() time.Time
	logger *zap.Logger
}

// NewFieldExtractor creates an extractor using the wall clock.
func NewFieldExtractor(logger *zap.Logger) *FieldExtractor {
	return &FieldExtractor{now: time.Now, logger: logger}
}

// WithClock returns a copy of the extractor that derives ages from now.
func (e *FieldExtractor) WithClock(now func() time.Time) *FieldExtractor {
	return &FieldExtractor{now: now, logger: e.logger}
}

// ExtractAll extracts every row in order.
func (e *FieldExtractor) ExtractAll(rows []domain.RawRow, m domain.ColumnMapping, env domain.Environment) []domain.ExtractedRecord {
	records := make([]domain.ExtractedRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, e.Extract(row, m, env))
	}
	return records
}

// Extract builds the typed record for one row.
func (e *FieldExtractor) Extract(row domain.RawRow, m domain.ColumnMapping, env domain.Environment) domain.ExtractedRecord {
	rec := domain.ExtractedRecord{
		RowIndex:   row.RowIndex,
		FirstName:  strings.TrimSpace(row.Cell(m.FirstName)),
		LastName:   strings.TrimSpace(row.Cell(m.LastName)),
		Email:      strings.TrimSpace(row.Cell(m.Email)),
		Phone:      CleanPhone(row.Cell(m.Phone)),
		Occupation: strings.TrimSpace(row.Cell(m.Occupation)),
		HearUsFrom: strings.TrimSpace(row.Cell(m.HearUsFrom)),
		NoteText:   buildNote(row, m.PostItColumns),
	}

	rawGender := row.Cell(m.Gender)
	code, ok := MapGender(rawGender)
	if !ok {
		e.logger.Warn("unrecognized gender, defaulting to male",
			zap.Int("row_index", row.RowIndex),
			zap.String("gender", rawGender),
		)
	}
	rec.GenderCode = code

	rec.BirthDate = e.date(row, m.BirthDate, "birth_date")
	rec.RegistrationDate = e.date(row, m.RegistrationDate, "registration_date")

	if age, err := strconv.Atoi(strings.TrimSpace(row.Cell(m.Age))); err == nil && age >= 0 {
		rec.Age = &age
	} else if rec.BirthDate != nil {
		if derived := AgeAt(*rec.BirthDate, e.now()); derived >= 0 {
			rec.Age = &derived
		} else {
			e.logger.Warn("birth date in the future, age left empty",
				zap.Int("row_index", row.RowIndex),
				zap.Time("birth_date", *rec.BirthDate),
			)
		}
	}

	if env == domain.EnvDev {
		rec.Email = ObfuscateEmail(rec.Email)
		rec.Phone = ObfuscatePhone(rec.Phone)
	}
	return rec
}

func (e *FieldExtractor) date(row domain.RawRow, col int, field string) *time.Time {
	raw := strings.TrimSpace(row.Cell(col))
	if raw == "" {
		return nil
	}
	t, ok := ParseDate(raw)
	if !ok {
		e.logger.Warn("unparseable date, storing null",
			zap.Int("row_index", row.RowIndex),
			zap.String("field", field),
			zap.String("value", raw),
		)
		return nil
	}
	return &t
}

// ============================================================
// Field normalization
// ============================================================

// CleanPhone strips every non-digit character.
func CleanPhone(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

var genderFolder = cases.Fold()

// MapGender returns the gender code for s and whether s was recognized.
// Unrecognized values, including empty ones, map to male.
func MapGender(s string) (int, bool) {
	switch genderFolder.String(strings.TrimSpace(s)) {
	case "male", "m", "男":
		return domain.GenderMale, true
	case "female", "f", "女":
		return domain.GenderFemale, true
	}
	return domain.GenderMale, false
}

var slashDate = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2}|\d{4})$`)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05-07:00",
}

// ParseDate accepts ISO timestamps (date part kept as written), M/D/YY with a
// 1950 pivot, M/D/YYYY and plain YYYY-MM-DD. The result is midnight UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if strings.ContainsAny(s, "T+") {
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return civilDate(t.Year(), int(t.Month()), t.Day())
			}
		}
		return time.Time{}, false
	}

	if m := slashDate.FindStringSubmatch(s); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if len(m[3]) == 2 {
			if year < 50 {
				year += 2000
			} else {
				year += 1900
			}
		}
		return civilDate(year, month, day)
	}

	if t, err := time.Parse(domain.DateLayout, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// civilDate rejects dates time.Date would normalize, such as 2/30.
func civilDate(year, month, day int) (time.Time, bool) {
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// AgeAt returns completed years between birth and now.
func AgeAt(birth, now time.Time) int {
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age
}

func buildNote(row domain.RawRow, cols []int) string {
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		v := row.Cell(c)
		if strings.TrimSpace(v) == "" {
			continue
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, "\n")
}

// ============================================================
// DEV obfuscation
// ============================================================

const devPrefix = "a1b2c3_"

// ObfuscateEmail rewrites local@domain as a1b2c3_local_dev@domain.
func ObfuscateEmail(email string) string {
	if email == "" {
		return ""
	}
	local, host, ok := strings.Cut(email, "@")
	if !ok {
		return devPrefix + email + "_dev"
	}
	return devPrefix + local + "_dev@" + host
}

// ObfuscatePhone replaces the last four digits with 1234.
func ObfuscatePhone(phone string) string {
	if len(phone) < 4 {
		return phone
	}
	return phone[:len(phone)-4] + "1234"
}
