package extraction

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// Input is everything the model sees for one inbound message
type Input struct {
	Text     string
	Media    []byte
	MIMEType string
	// Today anchors relative dates ("ayer") and the fallback date.
	Today time.Time
}

// Data contains the validated fields of one extracted transaction
type Data struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Type        string          `json:"type"`
	// Date is YYYY-MM-DD, or empty when the model gave no usable date.
	Date string `json:"date,omitempty"`
}

// Result is either a success carrying Data or a failure carrying a reason
type Result struct {
	Data   *Data
	Reason string
	Err    error
}

// OK reports whether extraction produced data
func (r Result) OK() bool {
	return r.Data != nil
}

func succeeded(data *Data) Result {
	return Result{Data: data}
}

func failed(reason string, err error) Result {
	return Result{Reason: reason, Err: err}
}

// Extractor turns message text and optional media into transaction data
type Extractor interface {
	// Extract makes a single model call. It never returns an error: every
	// failure is folded into a failed Result.
	Extract(ctx context.Context, in Input) Result
	// Close releases the model client
	Close() error
}

// completer is the one model round trip a backend provides
type completer interface {
	complete(ctx context.Context, prompt string, media []byte, mimeType string) (string, error)
}

// extract runs the shared prompt → model → parse sequence against a backend
func extract(ctx context.Context, backend completer, in Input) Result {
	prompt := BuildPrompt(in.Text, in.Today)

	media, mimeType := in.Media, in.MIMEType
	if len(media) > 0 {
		prepared, preparedType, err := prepareMedia(media, mimeType)
		if err != nil {
			slog.Warn("Dropping media that could not be prepared",
				"content_type", mimeType,
				"size", len(media),
				"error", err,
			)
			media, mimeType = nil, ""
		} else {
			media, mimeType = prepared, preparedType
		}
	}

	text, err := backend.complete(ctx, prompt, media, mimeType)
	if err != nil {
		return failed("model call failed", err)
	}

	data, err := parseTransactionJSON(text)
	if err != nil {
		return failed("model output unreadable", err)
	}

	return succeeded(data)
}
