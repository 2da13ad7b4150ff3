package equipment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var gvizEnvelope = regexp.MustCompile(`(?s)google\.visualization\.Query\.setResponse\((.*)\);?`)

type gvizResponse struct {
	Table struct {
		Cols []struct {
			ID    string `json:"id"`
			Label string `json:"label"`
		} `json:"cols"`
		Rows []struct {
			C []*gvizCell `json:"c"`
		} `json:"rows"`
	} `json:"table"`
}

type gvizCell struct {
	V any     `json:"v"`
	F *string `json:"f"`
}

// ParseGviz turns a Google Visualization JSONP response into equipment rows.
// organization fills Facility when the sheet has no site name.
func ParseGviz(body []byte, organization string) ([]Equipment, error) {
	match := gvizEnvelope.FindSubmatch(body)
	if match == nil || len(bytes.TrimSpace(match[1])) == 0 {
		return nil, fmt.Errorf("invalid response format")
	}

	decoder := json.NewDecoder(bytes.NewReader(match[1]))
	decoder.UseNumber()
	var resp gvizResponse
	if err := decoder.Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode sheet response: %w", err)
	}

	headers := make([]string, len(resp.Table.Cols))
	for i, col := range resp.Table.Cols {
		label := col.Label
		if label == "" {
			label = fmt.Sprintf("col%d", i)
		}
		headers[i] = NormalizeHeader(label)
	}

	items := make([]Equipment, 0, len(resp.Table.Rows))
	for i, row := range resp.Table.Rows {
		if row.C == nil {
			continue
		}
		values := make(map[string]any, len(row.C))
		for j, cell := range row.C {
			header := NormalizeHeader(fmt.Sprintf("col%d", j))
			if j < len(headers) {
				header = headers[j]
			}
			values[header] = cellValue(cell)
		}
		items = append(items, toEquipment(i+1, values, organization))
	}
	return items, nil
}

// NormalizeHeader lowercases, strips accents and drops everything but [a-z0-9].
func NormalizeHeader(header string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(t, strings.ToLower(header))
	if err != nil {
		stripped = strings.ToLower(header)
	}
	var b strings.Builder
	for _, r := range stripped {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// cellValue prefers the raw value, then the formatted one, then "".
func cellValue(cell *gvizCell) any {
	if cell == nil {
		return ""
	}
	if cell.V != nil {
		return cell.V
	}
	if cell.F != nil {
		return *cell.F
	}
	return ""
}

func toEquipment(id int, values map[string]any, organization string) Equipment {
	site := text(values["nombresede"])
	facility := site
	if facility == "" {
		facility = organization
	}
	return Equipment{
		ID:          id,
		Code:        strings.TrimSpace(text(values["codigoactivo"])),
		Name:        orDefault(text(values["descripcion"]), "Sin nombre"),
		Brand:       orDefault(text(values["marca"]), "-"),
		Model:       orDefault(text(values["modelo"]), "-"),
		Serial:      orDefault(text(values["nroserie"]), "-"),
		Location:    orDefault(site, "-"),
		Facility:    facility,
		Age:         orDefault(text(values["antiguedad"]), "-"),
		Status:      status(values["estado"]),
		Site:        orDefault(text(values["sede"]), "-"),
		Family:      orDefault(text(values["familia"]), "-"),
		LastService: "-",
		NextService: "-",
		Technician:  "-",
	}
}

// status maps the numeric ESTADO column; anything but 0 counts as operational.
func status(v any) string {
	if n, ok := v.(json.Number); ok {
		if f, err := n.Float64(); err == nil && f == 0 {
			return StatusRetired
		}
	}
	return StatusOperational
}

func text(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case json.Number:
		if f, err := value.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return value.String()
	case bool:
		if value {
			return "true"
		}
		return ""
	default:
		return fmt.Sprint(value)
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
