package processor

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"

	"docuchat/internal/models"
)

// Kind identifies the file format an upload is treated as.
type Kind string

const (
	KindText    Kind = "txt"
	KindCSV     Kind = "csv"
	KindXLSX    Kind = "xlsx"
	KindODS     Kind = "ods"
	KindPDF     Kind = "pdf"
	KindDOCX    Kind = "docx"
	KindJSON    Kind = "json"
	KindUnknown Kind = "unknown"
)

// Content is the tagged extraction result: Text for document kinds, Rows for
// row-oriented kinds. Only the fields valid for the kind are populated.
type Content struct {
	Kind Kind
	Text string
	Rows [][]string
}

// DetectKind maps a file name to its processing kind by extension.
func DetectKind(name string) Kind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".text":
		return KindText
	case ".csv":
		return KindCSV
	case ".xlsx":
		return KindXLSX
	case ".ods":
		return KindODS
	case ".pdf":
		return KindPDF
	case ".docx":
		return KindDOCX
	case ".json":
		return KindJSON
	default:
		return KindUnknown
	}
}

// Accepted reports whether the extension is on the upload allowlist.
func Accepted(name string) bool {
	return DetectKind(name) != KindUnknown
}

func extract(name string, kind Kind, data []byte) (Content, error) {
	switch kind {
	case KindText:
		return Content{Kind: kind, Text: string(data)}, nil
	case KindCSV:
		return extractCSV(data)
	case KindXLSX:
		return extractXLSX(data)
	case KindODS:
		return extractODS(data)
	case KindPDF:
		return extractPDF(data)
	case KindDOCX:
		return extractDOCX(data)
	case KindJSON:
		return extractJSON(data)
	default:
		// Synthetic descriptive text so the pipeline never receives
		// empty input silently.
		return Content{Kind: kind, Text: fmt.Sprintf(models.UnknownFileTemplate, name, strings.ToUpper(string(kind)))}, nil
	}
}

func extractCSV(data []byte) (Content, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return Content{}, fmt.Errorf("csv decode: %w", err)
	}
	return Content{Kind: KindCSV, Rows: rows}, nil
}

func extractXLSX(data []byte) (Content, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return Content{}, fmt.Errorf("xlsx decode: %w", err)
	}

	var rows [][]string
	for _, sheet := range f.Sheets {
		for _, row := range sheet.Rows {
			var cells []string
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			rows = append(rows, cells)
		}
	}
	return Content{Kind: KindXLSX, Rows: rows}, nil
}

func extractODS(data []byte) (Content, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return Content{}, fmt.Errorf("ods decode: %w", err)
	}
	defer f.Close()

	var rows [][]string
	for _, sheetName := range f.GetSheetList() {
		sheetRows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		rows = append(rows, sheetRows...)
	}
	return Content{Kind: KindODS, Rows: rows}, nil
}

func extractPDF(data []byte) (Content, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Content{}, fmt.Errorf("pdf decode: %w", err)
	}

	var text strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return Content{}, fmt.Errorf("pdf page %d: %w", i, err)
		}
		text.WriteString(pageText)
		text.WriteString("\n")
	}
	return Content{Kind: KindPDF, Text: text.String()}, nil
}

func extractDOCX(data []byte) (Content, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Content{}, fmt.Errorf("docx decode: %w", err)
	}
	defer r.Close()

	content := r.Editable().GetContent()
	var lines []string
	for _, p := range strings.Split(content, "\n") {
		if strings.TrimSpace(p) == "" {
			continue
		}
		lines = append(lines, p)
	}
	return Content{Kind: KindDOCX, Text: strings.Join(lines, "\n")}, nil
}

// extractJSON flattens a JSON document into line-oriented key/value text so
// it chunks like prose.
func extractJSON(data []byte) (Content, error) {
	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Content{}, fmt.Errorf("json decode: %w", err)
	}

	var text strings.Builder
	switch v := parsed.(type) {
	case []any:
		text.WriteString("JSON Array:\n")
		for i, item := range v {
			text.WriteString(fmt.Sprintf("Item %d: %s\n", i, flattenJSONValue(item)))
		}
	case map[string]any:
		text.WriteString("JSON Object:\n")
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			text.WriteString(fmt.Sprintf("%s: %s\n", k, flattenJSONValue(v[k])))
		}
	default:
		text.WriteString(fmt.Sprintf("JSON Value: %v", v))
	}
	return Content{Kind: KindJSON, Text: text.String()}, nil
}

func flattenJSONValue(v any) string {
	switch t := v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", t)
	}
}
