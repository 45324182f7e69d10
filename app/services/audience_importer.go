package services

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/amirphl/Amaterasu/utils"
	"github.com/xuri/excelize/v2"
)

var (
	ErrAudienceUnsupportedFormat = errors.New("audience file must be .csv or .xlsx")
	ErrAudienceEmpty             = errors.New("audience file has no data rows")
	ErrAudienceMissingColumns    = errors.New("audience file must contain phone_number and link columns")
)

// Required audience columns
const (
	AudienceColumnPhone = "phone_number"
	AudienceColumnLink  = "link"
)

// ParsedAudience is the normalized content of an uploaded audience file
type ParsedAudience struct {
	Columns       []string
	Rows          []ParsedAudienceRow
	ContentSHA256 string
	Dropped       int
}

// ParsedAudienceRow is one recipient after phone normalization
type ParsedAudienceRow struct {
	PhoneNumber string            `json:"phone_number"`
	Link        string            `json:"link"`
	Fields      map[string]string `json:"fields"`
}

// AudienceImporter turns csv/xlsx uploads into normalized rows
type AudienceImporter struct{}

func NewAudienceImporter() *AudienceImporter {
	return &AudienceImporter{}
}

// Parse reads the file, requires phone_number and link, normalizes phones to
// digits and drops rows without a phone or a link.
func (i *AudienceImporter) Parse(fileName string, data []byte) (*ParsedAudience, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		records, err = readCSV(data)
	case ".xlsx":
		records, err = readXLSX(data)
	default:
		return nil, ErrAudienceUnsupportedFormat
	}
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, ErrAudienceEmpty
	}

	header := make([]string, len(records[0]))
	index := map[string]int{}
	for n, col := range records[0] {
		col = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
		header[n] = col
		index[col] = n
	}
	phoneIdx, hasPhone := index[AudienceColumnPhone]
	linkIdx, hasLink := index[AudienceColumnLink]
	if !hasPhone || !hasLink {
		return nil, ErrAudienceMissingColumns
	}

	sum := sha256.Sum256(data)
	out := &ParsedAudience{
		Columns:       header,
		ContentSHA256: hex.EncodeToString(sum[:]),
	}
	for _, rec := range records[1:] {
		phone := utils.DigitsOnly(cell(rec, phoneIdx))
		link := cell(rec, linkIdx)
		if phone == "" || link == "" {
			out.Dropped++
			continue
		}
		fields := make(map[string]string, len(header))
		for n, col := range header {
			fields[col] = cell(rec, n)
		}
		out.Rows = append(out.Rows, ParsedAudienceRow{
			PhoneNumber: phone,
			Link:        link,
			Fields:      fields,
		})
	}
	if len(out.Rows) == 0 {
		return nil, ErrAudienceEmpty
	}
	return out, nil
}

func cell(rec []string, idx int) string {
	if idx < len(rec) {
		return strings.TrimSpace(rec[idx])
	}
	return ""
}

func readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrAudienceEmpty
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("invalid xlsx: %w", err)
	}
	return rows, nil
}
