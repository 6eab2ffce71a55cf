package domain

import (
	"encoding/json"
	"time"
)

// ============================================================
// Sheet rows and column mapping
// ============================================================

// Cell is one formatted spreadsheet cell.
type Cell struct {
	FormattedValue string `json:"formattedValue"`
}

// RowData holds the ordered cells of a row.
type RowData struct {
	Values []Cell `json:"values"`
}

// RawRow is one spreadsheet row plus its zero-based index in the worksheet.
type RawRow struct {
	RowIndex int     `json:"rowIndex"`
	Data     RowData `json:"data"`
}

// Cell returns the formatted value at column i, or "" when out of range.
func (r RawRow) Cell(i int) string {
	if i < 0 || i >= len(r.Data.Values) {
		return ""
	}
	return r.Data.Values[i].FormattedValue
}

// ColumnMapping maps each imported field to a zero-based column index.
type ColumnMapping struct {
	FirstName        int   `json:"firstName" validate:"min=0"`
	LastName         int   `json:"lastName" validate:"min=0"`
	Email            int   `json:"email" validate:"min=0"`
	Phone            int   `json:"phone" validate:"min=0"`
	Gender           int   `json:"gender" validate:"min=0"`
	BirthDate        int   `json:"birthDate" validate:"min=0"`
	Age              int   `json:"age" validate:"min=0"`
	Occupation       int   `json:"occupation" validate:"min=0"`
	RegistrationDate int   `json:"registrationDate" validate:"min=0"`
	HearUsFrom       int   `json:"hearUsFrom" validate:"min=0"`
	PostItColumns    []int `json:"postItColumns" validate:"dive,min=0"`
}

// DefaultPostItColumns are the note columns of the standard registration sheet.
var DefaultPostItColumns = []int{1, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26}

// DefaultColumnMapping returns the layout of the standard registration sheet.
func DefaultColumnMapping() ColumnMapping {
	return ColumnMapping{
		FirstName:        2,
		LastName:         3,
		Email:            10,
		Phone:            9,
		Gender:           4,
		BirthDate:        6,
		Age:              5,
		Occupation:       8,
		RegistrationDate: 11,
		HearUsFrom:       12,
		PostItColumns:    append([]int(nil), DefaultPostItColumns...),
	}
}

// UnmarshalJSON fills fields absent from the payload with the defaults.
func (m *ColumnMapping) UnmarshalJSON(b []byte) error {
	type plain ColumnMapping
	p := plain(DefaultColumnMapping())
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*m = ColumnMapping(p)
	return nil
}

// Environment selects how contact data is written.
type Environment string

const (
	EnvProd Environment = "PROD"
	EnvDev  Environment = "DEV"
)

// ============================================================
// Extracted record
// ============================================================

// ExtractedRecord is the typed form of a RawRow. Empty strings stand for null.
type ExtractedRecord struct {
	RowIndex         int        `json:"rowIndex"`
	FirstName        string     `json:"firstName"`
	LastName         string     `json:"lastName"`
	Email            string     `json:"email,omitempty"`
	Phone            string     `json:"phone,omitempty"`
	GenderCode       int        `json:"genderCode"`
	BirthDate        *time.Time `json:"birthDate,omitempty"`
	Age              *int       `json:"age,omitempty"`
	Occupation       string     `json:"occupation,omitempty"`
	RegistrationDate *time.Time `json:"registrationDate,omitempty"`
	HearUsFrom       string     `json:"hearUsFrom,omitempty"`
	NoteText         string     `json:"noteText,omitempty"`
}

const (
	GenderMale   = 1
	GenderFemale = 2
)

// DateLayout is the ISO date format written to the store.
const DateLayout = "2006-01-02"
