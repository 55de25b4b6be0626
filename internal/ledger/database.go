package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const (
	messagesBucket     = "messages"
	transactionsBucket = "transactions"
)

// MessageStore is the append-only log of inbound messages
type MessageStore interface {
	// CreateMessage saves a new message and fills in its ID and CreatedAt
	CreateMessage(ctx context.Context, message *Message) error

	// MarkProcessed sets the processed flag of a message to true
	MarkProcessed(ctx context.Context, id string) error

	// GetMessage retrieves a message by ID
	GetMessage(ctx context.Context, id string) (*Message, error)

	// ListMessages returns all messages, newest first
	ListMessages(ctx context.Context) ([]*Message, error)
}

// TransactionStore holds committed transactions
type TransactionStore interface {
	// CreateTransaction saves a new transaction and fills in its ID and CreatedAt.
	// The referenced raw message must exist.
	CreateTransaction(ctx context.Context, transaction *Transaction) error

	// ListTransactions returns all transactions ordered by date descending
	ListTransactions(ctx context.Context) ([]*Transaction, error)
}

// DB is a store holding both messages and transactions
type DB interface {
	MessageStore
	TransactionStore

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{messagesBucket, transactionsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// CreateMessage saves a new message
func (b *BoltDB) CreateMessage(_ context.Context, message *Message) error {
	message.ID = uuid.NewString()
	message.CreatedAt = time.Now().UTC()

	return b.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket([]byte(messagesBucket)), message.ID, message)
	})
}

// MarkProcessed flips the processed flag of a message
func (b *BoltDB) MarkProcessed(_ context.Context, id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(messagesBucket))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("message %s: %w", id, ErrNotFound)
		}
		var message Message
		if err := json.Unmarshal(data, &message); err != nil {
			return fmt.Errorf("unmarshaling message: %w", err)
		}
		message.Processed = true
		return putJSON(bucket, id, &message)
	})
}

// GetMessage retrieves a message by ID
func (b *BoltDB) GetMessage(_ context.Context, id string) (*Message, error) {
	var message *Message
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(messagesBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("message %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &message)
	})
	if err != nil {
		return nil, err
	}
	return message, nil
}

// ListMessages returns all messages, newest first
func (b *BoltDB) ListMessages(_ context.Context) ([]*Message, error) {
	messages := make([]*Message, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(messagesBucket)).ForEach(func(k, v []byte) error {
			var message Message
			if err := json.Unmarshal(v, &message); err != nil {
				return fmt.Errorf("unmarshaling message: %w", err)
			}
			messages = append(messages, &message)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.After(messages[j].CreatedAt)
	})
	return messages, nil
}

// CreateTransaction saves a new transaction linked to an existing message
func (b *BoltDB) CreateTransaction(_ context.Context, transaction *Transaction) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(messagesBucket)).Get([]byte(transaction.RawMessageID)) == nil {
			return fmt.Errorf("raw message %s: %w", transaction.RawMessageID, ErrNotFound)
		}
		transaction.ID = uuid.NewString()
		transaction.CreatedAt = time.Now().UTC()
		return putJSON(tx.Bucket([]byte(transactionsBucket)), transaction.ID, transaction)
	})
}

// ListTransactions returns all transactions ordered by date descending
func (b *BoltDB) ListTransactions(_ context.Context) ([]*Transaction, error) {
	transactions := make([]*Transaction, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(transactionsBucket)).ForEach(func(k, v []byte) error {
			var transaction Transaction
			if err := json.Unmarshal(v, &transaction); err != nil {
				return fmt.Errorf("unmarshaling transaction: %w", err)
			}
			transactions = append(transactions, &transaction)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	// Same order as ORDER BY date DESC, created_at DESC on the SQL store
	sort.SliceStable(transactions, func(i, j int) bool {
		if transactions[i].Date != transactions[j].Date {
			return transactions[i].Date > transactions[j].Date
		}
		return transactions[i].CreatedAt.After(transactions[j].CreatedAt)
	})
	return transactions, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

func putJSON(bucket *bbolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	return bucket.Put([]byte(key), data)
}
