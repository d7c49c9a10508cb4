package parse

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// MaxCSVBytes caps the accepted upload size.
const MaxCSVBytes = 10 << 20

// RowError records a skipped or rejected CSV row.
type RowError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// CSVResult carries the parsed items plus per-row failures; row errors never
// fail the whole file.
type CSVResult struct {
	Items     []Item
	RowErrors []RowError
}

// ParseCSV reads a UTF-8 CSV with a required header row. The only required
// column is name; price, imageUrl, linkUrl and description are optional and
// matched case-insensitively.
func ParseCSV(r io.Reader) (*CSVResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty csv file")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	nameIdx, ok := cols["name"]
	if !ok {
		return nil, fmt.Errorf("csv is missing required column %q", "name")
	}

	field := func(record []string, names ...string) string {
		for _, n := range names {
			if i, ok := cols[n]; ok && i < len(record) {
				return strings.TrimSpace(record[i])
			}
		}
		return ""
	}

	result := &CSVResult{}
	for rowIdx := 1; ; rowIdx++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.RowErrors = append(result.RowErrors, RowError{Index: rowIdx, Error: fmt.Sprintf("malformed row: %v", err)})
			continue
		}
		if nameIdx >= len(record) {
			result.RowErrors = append(result.RowErrors, RowError{Index: rowIdx, Error: "row has no name column"})
			continue
		}
		name := strings.TrimSpace(record[nameIdx])
		if name == "" {
			result.RowErrors = append(result.RowErrors, RowError{Index: rowIdx, Error: "empty name, row skipped"})
			continue
		}
		// A name carrying both a comma and a URL scheme means the row's quoting
		// collapsed and columns bled together.
		if strings.Contains(name, ",") && (strings.Contains(name, "http://") || strings.Contains(name, "https://")) {
			result.RowErrors = append(result.RowErrors, RowError{Index: rowIdx, Error: "corrupted row: name contains delimiter and URL"})
			continue
		}

		result.Items = append(result.Items, Item{
			Name:        name,
			Price:       CoercePrice(field(record, "price")),
			ImageURL:    NormalizeURL(field(record, "imageurl")),
			LinkURL:     NormalizeURL(field(record, "linkurl")),
			Description: field(record, "description"),
		})
	}
	return result, nil
}
