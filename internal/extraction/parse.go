package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Pasttor/finanzas/internal/calendar"
)

var fenceReplacer = strings.NewReplacer("```json", "", "```JSON", "", "```", "")

// rawTransaction mirrors the model's JSON before validation
type rawTransaction struct {
	Amount      *decimal.Decimal `json:"amount"`
	Currency    string           `json:"currency"`
	Category    string           `json:"category"`
	Description string           `json:"description"`
	Type        string           `json:"type"`
	Date        string           `json:"date"`
}

// stripFences removes markdown code fence markers wherever they appear
func stripFences(text string) string {
	return strings.TrimSpace(fenceReplacer.Replace(text))
}

// parseTransactionJSON parses and validates the model's text output
func parseTransactionJSON(text string) (*Data, error) {
	text = stripFences(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, errors.New("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, errors.New("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var raw rawTransaction
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	return raw.validate()
}

func (r rawTransaction) validate() (*Data, error) {
	if r.Amount == nil {
		return nil, errors.New("amount is missing")
	}
	if r.Amount.IsNegative() {
		return nil, fmt.Errorf("amount is negative: %s", r.Amount)
	}

	kind := strings.ToLower(strings.TrimSpace(r.Type))
	if kind == "" {
		return nil, errors.New("type is missing")
	}

	return &Data{
		Amount:      *r.Amount,
		Currency:    strings.ToUpper(strings.TrimSpace(r.Currency)),
		Category:    strings.TrimSpace(r.Category),
		Description: strings.TrimSpace(r.Description),
		Type:        kind,
		Date:        canonicalDate(r.Date),
	}, nil
}

// canonicalDate returns date as YYYY-MM-DD, or "" if it does not name a real day
func canonicalDate(date string) string {
	date = strings.TrimSpace(date)
	if date == "" {
		return ""
	}
	if t, err := time.Parse("2006-01-02", date); err == nil {
		return t.Format("2006-01-02")
	}
	d := calendar.Normalize(date)
	if !d.Valid() {
		return ""
	}
	return d.String()
}
