package materialize

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// issue is a structural validation failure. Recoverable means a human can
// fix it in review (field present but unreadable); unrecoverable means the
// extraction is unusable (required field missing, malformed line items).
type issue struct {
	message     string
	recoverable bool
}

// fieldsSchema validates the overall shape of the extracted mapping before
// field-level checks run. Value formats are left loose; the OCR producer
// owns the schema and drifts.
var fieldsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"numer_faktury":    map[string]any{"type": "string"},
		"data_wystawienia": map[string]any{"type": "string"},
		"data_sprzedazy":   map[string]any{"type": "string"},
		"sprzedawca": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"nazwa": map[string]any{"type": "string"},
				"nip":   map[string]any{"type": "string"},
			},
		},
		"nabywca": map[string]any{"type": "object"},
		"pozycje": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "object"},
		},
		"waluta": map[string]any{"type": "string"},
	},
}

func compileFieldsSchema() (*jsonschema.Schema, error) {
	b, err := json.Marshal(fieldsSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("extracted_fields.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("extracted_fields.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// validate parses and checks the raw extracted fields. Returns the parsed
// document and the first blocking issue, nil when the structure is sound
// enough to auto-create from.
func (g *Gate) validate(raw json.RawMessage) (*ExtractedInvoice, *issue) {
	if len(raw) == 0 {
		return nil, &issue{message: "no extracted fields", recoverable: false}
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, &issue{message: fmt.Sprintf("malformed extracted data: %v", err), recoverable: false}
	}
	if err := g.schema.Validate(v); err != nil {
		return nil, &issue{message: fmt.Sprintf("malformed extracted data: %v", err), recoverable: false}
	}

	var doc ExtractedInvoice
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &issue{message: fmt.Sprintf("malformed extracted data: %v", err), recoverable: false}
	}

	if doc.NumerFaktury == "" {
		return &doc, &issue{message: "missing required field: numer_faktury", recoverable: false}
	}
	if doc.DataWystawienia == "" {
		return &doc, &issue{message: "missing required field: data_wystawienia", recoverable: false}
	}
	if doc.Sprzedawca.Nazwa == "" {
		return &doc, &issue{message: "missing required field: sprzedawca.nazwa", recoverable: false}
	}
	if len(doc.Pozycje) == 0 {
		return &doc, &issue{message: "missing required field: pozycje", recoverable: false}
	}
	for i, item := range doc.Pozycje {
		if item.Nazwa == "" {
			return &doc, &issue{
				message:     fmt.Sprintf("malformed line items: position %d missing nazwa", i+1),
				recoverable: false,
			}
		}
	}

	// Recoverable from here down: the data exists but needs a human.
	if _, ok := parseDate(doc.DataWystawienia); !ok {
		return &doc, &issue{
			message:     fmt.Sprintf("unrecognized issue date format: %q", doc.DataWystawienia),
			recoverable: true,
		}
	}
	if normalizeNIP(doc.Sprzedawca.NIP) == "" {
		return &doc, &issue{message: "sprzedawca missing NIP", recoverable: true}
	}

	return &doc, nil
}
