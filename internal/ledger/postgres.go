package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Schema creates the tables used by Postgres. Table and column names match
// the ledger the dashboard already reads.
const Schema = `
CREATE TABLE IF NOT EXISTS whatsapp_messages (
	id                 TEXT PRIMARY KEY,
	sender             TEXT NOT NULL,
	message_text       TEXT NOT NULL DEFAULT '',
	media_url          TEXT,
	media_content_type TEXT,
	channel_message_id TEXT,
	is_processed       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transactions (
	id             TEXT PRIMARY KEY,
	amount         NUMERIC NOT NULL,
	currency       TEXT NOT NULL DEFAULT '',
	category       TEXT NOT NULL DEFAULT '',
	description    TEXT NOT NULL DEFAULT '',
	type           TEXT NOT NULL,
	date           TEXT NOT NULL,
	raw_message_id TEXT NOT NULL REFERENCES whatsapp_messages (id),
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

var (
	psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	messageColumns = []string{
		"id", "sender", "message_text",
		"COALESCE(media_url, '')", "COALESCE(media_content_type, '')", "COALESCE(channel_message_id, '')",
		"is_processed", "created_at",
	}
	transactionColumns = []string{
		"id", "amount::text", "currency", "category", "description", "type", "date", "raw_message_id", "created_at",
	}
)

// Postgres implements the DB interface on a pgx connection pool
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and verifies the connection
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	slog.Info("Database connection established",
		"host", poolConfig.ConnConfig.Host,
		"database", poolConfig.ConnConfig.Database,
	)

	return &Postgres{pool: pool}, nil
}

// Migrate creates the tables if they do not exist
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func insertMessageQuery(message *Message) squirrel.InsertBuilder {
	return psql.Insert("whatsapp_messages").
		Columns("id", "sender", "message_text", "media_url", "media_content_type", "channel_message_id", "is_processed").
		Values(
			message.ID, message.Sender, message.Text,
			nullIfEmpty(message.MediaURL), nullIfEmpty(message.MediaContentType), nullIfEmpty(message.ChannelMessageID),
			false,
		).
		Suffix("RETURNING created_at")
}

func markProcessedQuery(id string) squirrel.UpdateBuilder {
	return psql.Update("whatsapp_messages").
		Set("is_processed", true).
		Where(squirrel.Eq{"id": id})
}

func selectMessagesQuery() squirrel.SelectBuilder {
	return psql.Select(messageColumns...).
		From("whatsapp_messages").
		OrderBy("created_at DESC")
}

func insertTransactionQuery(transaction *Transaction) squirrel.InsertBuilder {
	return psql.Insert("transactions").
		Columns("id", "amount", "currency", "category", "description", "type", "date", "raw_message_id").
		Values(
			transaction.ID, squirrel.Expr("?::numeric", transaction.Amount.String()),
			transaction.Currency, transaction.Category, transaction.Description,
			transaction.Type, transaction.Date, transaction.RawMessageID,
		).
		Suffix("RETURNING created_at")
}

func selectTransactionsQuery() squirrel.SelectBuilder {
	return psql.Select(transactionColumns...).
		From("transactions").
		OrderBy("date DESC", "created_at DESC")
}

// CreateMessage saves a new message
func (p *Postgres) CreateMessage(ctx context.Context, message *Message) error {
	message.ID = uuid.NewString()

	sql, args, err := insertMessageQuery(message).ToSql()
	if err != nil {
		return fmt.Errorf("building insert: %w", err)
	}
	if err := p.pool.QueryRow(ctx, sql, args...).Scan(&message.CreatedAt); err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// MarkProcessed flips the processed flag of a message
func (p *Postgres) MarkProcessed(ctx context.Context, id string) error {
	sql, args, err := markProcessedQuery(id).ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}
	tag, err := p.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("updating message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetMessage retrieves a message by ID
func (p *Postgres) GetMessage(ctx context.Context, id string) (*Message, error) {
	sql, args, err := selectMessagesQuery().Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	message, err := scanMessage(p.pool.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("selecting message: %w", err)
	}
	return message, nil
}

// ListMessages returns all messages, newest first
func (p *Postgres) ListMessages(ctx context.Context) ([]*Message, error) {
	sql, args, err := selectMessagesQuery().ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*Message, 0)
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, message)
	}
	return messages, rows.Err()
}

// CreateTransaction saves a new transaction
func (p *Postgres) CreateTransaction(ctx context.Context, transaction *Transaction) error {
	transaction.ID = uuid.NewString()

	sql, args, err := insertTransactionQuery(transaction).ToSql()
	if err != nil {
		return fmt.Errorf("building insert: %w", err)
	}
	if err := p.pool.QueryRow(ctx, sql, args...).Scan(&transaction.CreatedAt); err != nil {
		return fmt.Errorf("inserting transaction: %w", err)
	}
	return nil
}

// ListTransactions returns all transactions ordered by date descending
func (p *Postgres) ListTransactions(ctx context.Context) ([]*Transaction, error) {
	sql, args, err := selectTransactionsQuery().ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]*Transaction, 0)
	for rows.Next() {
		var (
			t      Transaction
			amount string
		)
		if err := rows.Scan(&t.ID, &amount, &t.Currency, &t.Category, &t.Description, &t.Type, &t.Date, &t.RawMessageID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parsing amount %q: %w", amount, err)
		}
		transactions = append(transactions, &t)
	}
	return transactions, rows.Err()
}

// Close closes the connection pool
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	if err := row.Scan(&m.ID, &m.Sender, &m.Text, &m.MediaURL, &m.MediaContentType, &m.ChannelMessageID, &m.Processed, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}
