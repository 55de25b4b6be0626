package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by stores when a record does not exist
var ErrNotFound = errors.New("not found")

// Message is the durable record of one inbound chat event.
// Only Processed ever changes after creation, and only from false to true.
type Message struct {
	ID               string    `json:"id"`
	Sender           string    `json:"sender"`
	Text             string    `json:"message_text"`
	MediaURL         string    `json:"media_url,omitempty"`
	MediaContentType string    `json:"media_content_type,omitempty"`
	ChannelMessageID string    `json:"channel_message_id,omitempty"` // provider id, kept for diagnostics
	Processed        bool      `json:"is_processed"`
	CreatedAt        time.Time `json:"created_at"`
}

// Transaction is a committed income or expense extracted from a Message
type Transaction struct {
	ID           string          `json:"id"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Category     string          `json:"category"`
	Description  string          `json:"description"`
	Type         string          `json:"type"` // "gasto", "ingreso" or an ad hoc label
	Date         string          `json:"date"`
	RawMessageID string          `json:"raw_message_id"`
	CreatedAt    time.Time       `json:"created_at"`
}

const (
	TypeExpense = "gasto"
	TypeIncome  = "ingreso"
)
