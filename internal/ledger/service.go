package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Pasttor/finanzas/internal/extraction"
	"github.com/Pasttor/finanzas/internal/media"
)

// FallbackReply is sent whenever a message was saved but produced no transaction
const FallbackReply = "Guardado, pero la IA no pudo leer los datos 🤷‍♂️"

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Inbound is one message event delivered by the chat channel
type Inbound struct {
	Sender           string
	Text             string
	MediaURL         string
	MediaContentType string
	ChannelMessageID string
}

// Outcome describes what ingesting one Inbound produced
type Outcome struct {
	Message     *Message
	Transaction *Transaction // nil unless a transaction was committed
	Extraction  extraction.Result
	Reply       string
}

// Service handles message ingestion and ledger queries
type Service struct {
	messages     MessageStore
	transactions TransactionStore
	fetcher      media.Fetcher
	extractor    extraction.Extractor
	storage      Storage
	timeSource   TimeSource
}

// NewService creates a new Service backed by a single DB. storage may be nil
// to skip archiving fetched media.
func NewService(db DB, fetcher media.Fetcher, extractor extraction.Extractor, storage Storage) *Service {
	return NewServiceWithDeps(db, db, fetcher, extractor, storage, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(messages MessageStore, transactions TransactionStore, fetcher media.Fetcher, extractor extraction.Extractor, storage Storage, timeSrc TimeSource) *Service {
	return &Service{
		messages:     messages,
		transactions: transactions,
		fetcher:      fetcher,
		extractor:    extractor,
		storage:      storage,
		timeSource:   timeSrc,
	}
}

// Ingest records an inbound message, extracts a transaction from it and
// commits the transaction. Only a failure to record the message is returned
// as an error; every later failure degrades to the fallback reply.
func (s *Service) Ingest(ctx context.Context, in Inbound) (*Outcome, error) {
	now := s.timeSource.Now().UTC()

	message := &Message{
		Sender:           in.Sender,
		Text:             in.Text,
		MediaURL:         in.MediaURL,
		MediaContentType: in.MediaContentType,
		ChannelMessageID: in.ChannelMessageID,
	}
	if err := s.messages.CreateMessage(ctx, message); err != nil {
		return nil, fmt.Errorf("saving raw message: %w", err)
	}
	slog.Info("Message received",
		"message_id", message.ID,
		"sender", message.Sender,
		"has_media", message.MediaURL != "",
	)

	outcome := &Outcome{Message: message, Reply: FallbackReply}

	mediaData := s.fetchMedia(ctx, message)

	result := s.extractor.Extract(ctx, extraction.Input{
		Text:     message.Text,
		Media:    mediaData,
		MIMEType: message.MediaContentType,
		Today:    now,
	})
	outcome.Extraction = result
	if !result.OK() {
		slog.Warn("Extraction failed",
			"message_id", message.ID,
			"reason", result.Reason,
			"error", result.Err,
		)
		return outcome, nil
	}

	transaction := newTransaction(message.ID, result.Data, now)
	if err := s.transactions.CreateTransaction(ctx, transaction); err != nil {
		slog.Error("Failed to save transaction", "message_id", message.ID, "error", err)
		return outcome, nil
	}
	outcome.Transaction = transaction
	outcome.Reply = successReply(transaction)

	// The transaction exists either way, so a failed flag update only costs
	// the processed marker
	if err := s.messages.MarkProcessed(ctx, message.ID); err != nil {
		slog.Error("Failed to mark message processed", "message_id", message.ID, "error", err)
		return outcome, nil
	}
	message.Processed = true

	slog.Info("Transaction saved",
		"message_id", message.ID,
		"transaction_id", transaction.ID,
		"type", transaction.Type,
		"amount", transaction.Amount.String(),
	)
	return outcome, nil
}

// fetchMedia downloads the message attachment, returning nil when there is
// none or it cannot be fetched
func (s *Service) fetchMedia(ctx context.Context, message *Message) []byte {
	if message.MediaURL == "" {
		return nil
	}

	data, err := s.fetcher.Fetch(ctx, message.MediaURL)
	if err != nil {
		slog.Error("Failed to download media",
			"message_id", message.ID,
			"url", message.MediaURL,
			"error", err,
		)
		return nil
	}
	slog.Info("Media downloaded", "message_id", message.ID, "size", len(data))

	if s.storage != nil {
		if _, err := s.storage.Save(mediaFilename(message), data); err != nil {
			slog.Warn("Failed to archive media", "message_id", message.ID, "error", err)
		}
	}
	return data
}

func newTransaction(messageID string, data *extraction.Data, now time.Time) *Transaction {
	date := data.Date
	if date == "" {
		date = now.UTC().Format(time.RFC3339)
	}
	return &Transaction{
		Amount:       data.Amount,
		Currency:     data.Currency,
		Category:     data.Category,
		Description:  data.Description,
		Type:         data.Type,
		Date:         date,
		RawMessageID: messageID,
	}
}

func successReply(t *Transaction) string {
	return fmt.Sprintf("✅ Ticket procesado: %s de $%s\n📍 %s\n📅 %s", t.Type, t.Amount.String(), t.Description, t.Date)
}

// ListTransactions returns the transactions inside period in the given order
func (s *Service) ListTransactions(ctx context.Context, period Period, order SortOrder) ([]*Transaction, error) {
	transactions, err := s.transactions.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return SortTransactions(FilterTransactions(transactions, period), order), nil
}

// Summarize aggregates the transactions inside period
func (s *Service) Summarize(ctx context.Context, period Period) (Summary, error) {
	transactions, err := s.transactions.ListTransactions(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("listing transactions: %w", err)
	}
	return Summarize(FilterTransactions(transactions, period)), nil
}

// AvailableYears lists the years a dashboard can filter by
func (s *Service) AvailableYears(ctx context.Context) ([]int, error) {
	transactions, err := s.transactions.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return AvailableYears(transactions, s.timeSource.Now()), nil
}

// ListMessages returns the raw message log
func (s *Service) ListMessages(ctx context.Context) ([]*Message, error) {
	messages, err := s.messages.ListMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return messages, nil
}

// GetMessage retrieves a message by ID
func (s *Service) GetMessage(ctx context.Context, id string) (*Message, error) {
	message, err := s.messages.GetMessage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting message: %w", err)
	}
	return message, nil
}

// GetMessageMedia returns the archived attachment of a message
func (s *Service) GetMessageMedia(ctx context.Context, id string) ([]byte, string, error) {
	message, err := s.messages.GetMessage(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("getting message: %w", err)
	}
	if message.MediaURL == "" || s.storage == nil {
		return nil, "", fmt.Errorf("media for message %s: %w", id, ErrNotFound)
	}

	data, err := s.storage.Get(mediaFilename(message))
	if err != nil {
		return nil, "", fmt.Errorf("getting media file: %w", err)
	}

	contentType := message.MediaContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}
