package domain

import "time"

// ============================================================
// Requests
// ============================================================

// ImportRequest is the payload accepted by every import stage.
// Branch, SystemUserID and Environment default to the server configuration.
type ImportRequest struct {
	SpreadsheetID string         `json:"spreadsheetId,omitempty"`
	WorksheetName string         `json:"worksheetName,omitempty"`
	SelectedRows  []RawRow       `json:"selectedRows" validate:"required,min=1"`
	ColumnMapping *ColumnMapping `json:"columnMapping" validate:"required"`
	Branch        string         `json:"branch,omitempty"`
	SystemUserID  string         `json:"systemUserId,omitempty"`
	Environment   Environment    `json:"environment,omitempty" validate:"omitempty,oneof=DEV PROD"`
}

// Mapping returns the request mapping, or the default one when absent.
func (r *ImportRequest) Mapping() ColumnMapping {
	if r.ColumnMapping == nil {
		return DefaultColumnMapping()
	}
	return *r.ColumnMapping
}

// ============================================================
// Duplicate detection
// ============================================================

// Duplicate reasons.
const (
	ReasonEmailExists      = "email exists"
	ReasonPhoneExists      = "phone exists"
	ReasonDuplicateInBatch = "duplicate in batch"
)

// DuplicateVerdict is the duplicate decision for one record.
type DuplicateVerdict struct {
	RowIndex          int    `json:"rowIndex"`
	IsDuplicate       bool   `json:"isDuplicate"`
	Reason            string `json:"reason,omitempty"`
	MatchedExternalID string `json:"existingProfileId,omitempty"`
}

// DuplicateReport partitions a batch into new and duplicate records.
type DuplicateReport struct {
	New        []ExtractedRecord  `json:"-"`
	Duplicates []DuplicateVerdict `json:"duplicateDetails"`
	Verdicts   []DuplicateVerdict `json:"-"`
}

// DuplicateCheckResponse is returned by POST /v1/database/check-duplicates.
type DuplicateCheckResponse struct {
	Success          bool               `json:"success"`
	TotalRows        int                `json:"totalRows"`
	DuplicateRows    int                `json:"duplicateRows"`
	NewRows          int                `json:"newRows"`
	DuplicateDetails []DuplicateVerdict `json:"duplicateDetails"`
	Message          string             `json:"message"`
}

// ============================================================
// Lead sources
// ============================================================

// LeadSource is an existing hear_us_from reference record.
type LeadSource struct {
	Value     string `json:"value"`
	ID        string `json:"id"`
	LeadGroup *int64 `json:"leadGroup"`
}

// LeadSourceValidation is the outcome of validating a batch's lead sources.
type LeadSourceValidation struct {
	TotalValues         int          `json:"totalValues"`
	Existing            []LeadSource `json:"existingValues"`
	Missing             []string     `json:"missingValues"`
	SuggestedStatements []string     `json:"sqlQueries"`
	CanProceed          bool         `json:"canProceed"`
}

// LeadSourceCheckResponse is returned by POST /v1/database/check-lead-sources.
type LeadSourceCheckResponse struct {
	Success bool                  `json:"success"`
	Message string                `json:"message"`
	Data    *LeadSourceValidation `json:"data,omitempty"`
}

// ============================================================
// Row import
// ============================================================

// RowResult describes what happened to one row.
type RowResult struct {
	RowIndex int    `json:"rowIndex"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Message  string `json:"message,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Row outcome reasons.
const (
	RowImported          = "Profile created successfully"
	RowDuplicateEntry    = "Duplicate entry - already exists in database"
	RowProcessingError   = "Processing error"
	RowMissingLeadSource = "Missing lead source"
	RowRolledBack        = "Rolled back: batch aborted"
	RowNotProcessed      = "Not processed: batch aborted"
)

// InsertionResults groups row results by outcome.
type InsertionResults struct {
	Successful []RowResult `json:"successful"`
	Failed     []RowResult `json:"failed"`
	Skipped    []RowResult `json:"skipped"`
}

// NewInsertionResults returns results with non-nil slices so they encode as [].
func NewInsertionResults() InsertionResults {
	return InsertionResults{
		Successful: []RowResult{},
		Failed:     []RowResult{},
		Skipped:    []RowResult{},
	}
}

// SatelliteTable is a placeholder table every profile needs a row in.
type SatelliteTable struct {
	Table  string
	Column string
	Value  int
}

// SatelliteTables lists the nine placeholder tables in insert order.
var SatelliteTables = []SatelliteTable{
	{Table: "profile_pref"},
	{Table: "profile_personal_info"},
	{Table: "profile_interest"},
	{Table: "profile_expectation"},
	{Table: "profile_confidential_info"},
	{Table: "profile_spoken_language", Column: "language", Value: 1},
	{Table: "profile_interested_in_dating", Column: "interested_in_dating", Value: 1},
	{Table: "profile_pref_call_timing"},
	{Table: "profile_pref_dates_timing"},
}

// Tables written for a fully imported row.
var ImportedTables = []string{
	"profile", "profile_email", "profile_phone", "hit", "followup",
	"profile_product_lead", "post_it",
	"profile_pref", "profile_personal_info", "profile_interest", "profile_expectation",
	"profile_confidential_info", "profile_spoken_language", "profile_interested_in_dating",
	"profile_pref_call_timing", "profile_pref_dates_timing",
}

// ============================================================
// Profile graph inserts
// ============================================================

// Audit carries the ownership and timestamp columns shared by every insert.
type Audit struct {
	CreatedOn time.Time
	UserID    string
}

// ProfileInsert is the profile row.
type ProfileInsert struct {
	ID         string
	FirstName  string
	LastName   string
	GenderCode int
	BirthDate  *time.Time
	Age        *int
	Occupation string
	Audit
}

// HitInsert is a lead-source attribution event.
type HitInsert struct {
	ProfileID    string
	LeadSourceID string
	HitType      int
	Branch       string
	Audit
}

// FollowupInsert is the follow-up task created with a hit.
type FollowupInsert struct {
	ProfileID          string
	HitID              string
	TodoDate           time.Time
	TodoTime           string
	Method             int
	Result             int
	AssignedConsultant string
	Product            int
	FollowupType       int
	Branch             string
	Audit
}

// ProductLeadInsert links a profile to a product, optionally through a hit.
type ProductLeadInsert struct {
	ProfileID string
	HitID     string // empty stores NULL
	Product   int
	Status    int
	Audit
}

// Fixed values written by the importer.
const (
	HitTypeWebsite         = 3
	FollowupTodoTime       = "09:00:00"
	FollowupMethod         = 1
	FollowupResult         = 2
	FollowupType           = 1
	ProductLeadStatus      = 1
	ProductWithHit         = 1
	ProductStandalone      = 2
	FollowupProduct        = 1
	NoteProfilePrefixFmt   = "[Profile ID: %s]\n\n%s"
	LeadSourceIDPrefix     = "HDHK_"
	LeadSourceDefaultGroup = 38
)

// ============================================================
// Reports
// ============================================================

// ImportState is the terminal (or current) state of an orchestrated run.
type ImportState string

const (
	StateValidating          ImportState = "Validating"
	StateDetectingDuplicates ImportState = "DetectingDuplicates"
	StateImporting           ImportState = "Importing"
	StateCompleted           ImportState = "Completed"
	StateNoOpCompleted       ImportState = "NoOpCompleted"
	StateAborted             ImportState = "Aborted"
	StateFailed              ImportState = "Failed"
)

// ImportReport is the outcome of one import call.
type ImportReport struct {
	ImportID         string                `json:"importId,omitempty"`
	State            ImportState           `json:"state,omitempty"`
	Success          bool                  `json:"success"`
	Message          string                `json:"message"`
	Suggestion       string                `json:"suggestion,omitempty"`
	SpreadsheetID    string                `json:"spreadsheetId,omitempty"`
	WorksheetName    string                `json:"worksheetName,omitempty"`
	TotalRows        int                   `json:"totalRows"`
	SuccessfulRows   int                   `json:"successfulRows"`
	FailedRows       int                   `json:"failedRows"`
	SkippedRows      int                   `json:"skippedRows"`
	InsertionResults InsertionResults      `json:"insertionResults"`
	DuplicateDetails []DuplicateVerdict    `json:"duplicateDetails,omitempty"`
	LeadSourceData   *LeadSourceValidation `json:"leadSourceData,omitempty"`
	Remediation      string                `json:"remediation,omitempty"`
	TablesInserted   []string              `json:"tablesInserted,omitempty"`
	Timestamp        time.Time             `json:"timestamp"`
}

// Tally recomputes the row counters from the insertion results.
func (r *ImportReport) Tally() {
	r.SuccessfulRows = len(r.InsertionResults.Successful)
	r.FailedRows = len(r.InsertionResults.Failed)
	r.SkippedRows = len(r.InsertionResults.Skipped)
}

// ImportEvent is the summary published after each orchestrated run.
type ImportEvent struct {
	ImportID       string      `json:"importId"`
	State          ImportState `json:"state"`
	Success        bool        `json:"success"`
	Branch         string      `json:"branch"`
	SpreadsheetID  string      `json:"spreadsheetId,omitempty"`
	WorksheetName  string      `json:"worksheetName,omitempty"`
	TotalRows      int         `json:"totalRows"`
	SuccessfulRows int         `json:"successfulRows"`
	FailedRows     int         `json:"failedRows"`
	SkippedRows    int         `json:"skippedRows"`
	MissingSources []string    `json:"missingLeadSources,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}
