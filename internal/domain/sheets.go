package domain

// Worksheet is one tab of a spreadsheet.
type Worksheet struct {
	Title       string `json:"title"`
	RowCount    int64  `json:"rowCount"`
	ColumnCount int64  `json:"columnCount"`
}

// WorksheetList is returned by GET /v1/sheets/{spreadsheetId}/worksheets.
type WorksheetList struct {
	SpreadsheetID string      `json:"spreadsheetId"`
	Worksheets    []Worksheet `json:"worksheets"`
}

// WorksheetData is one fetched range, shaped like the Sheets grid payload.
type WorksheetData struct {
	Data     []RowData         `json:"data"`
	Metadata WorksheetMetadata `json:"metadata"`
}

// WorksheetMetadata describes the fetched range.
type WorksheetMetadata struct {
	SpreadsheetID string `json:"spreadsheetId"`
	WorksheetName string `json:"worksheetName"`
	Range         string `json:"range"`
	TotalRows     int    `json:"totalRows"`
	TotalColumns  int    `json:"totalColumns"`
}

// Rows converts the grid into RawRows indexed from 0.
func (d *WorksheetData) Rows() []RawRow {
	rows := make([]RawRow, len(d.Data))
	for i, rd := range d.Data {
		rows[i] = RawRow{RowIndex: i, Data: rd}
	}
	return rows
}
