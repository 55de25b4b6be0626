package ledger

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("BoltDB", func() {
	var (
		ctx    context.Context
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		ctx = context.Background()
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("CreateMessage", func() {
		var (
			message *Message
			err     error
		)

		BeforeEach(func() {
			message = &Message{
				Sender:           "whatsapp:+5215550001111",
				Text:             "Uber 120",
				ChannelMessageID: "SM1",
			}
		})

		JustBeforeEach(func() {
			err = db.CreateMessage(ctx, message)
		})

		It("assigns an ID and creation time", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(message.ID).NotTo(BeEmpty())
			Expect(message.CreatedAt).NotTo(BeZero())
		})

		It("stores the message unprocessed", func() {
			stored, err := db.GetMessage(ctx, message.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Text).To(Equal("Uber 120"))
			Expect(stored.Sender).To(Equal("whatsapp:+5215550001111"))
			Expect(stored.Processed).To(BeFalse())
		})

		It("gives identical messages distinct IDs", func() {
			again := &Message{Sender: message.Sender, Text: message.Text}
			Expect(db.CreateMessage(ctx, again)).To(Succeed())
			Expect(again.ID).NotTo(Equal(message.ID))

			messages, err := db.ListMessages(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(messages).To(HaveLen(2))
			Expect(messages[0].ID).To(Equal(again.ID))
		})
	})

	Describe("MarkProcessed", func() {
		It("flips the flag", func() {
			message := &Message{Text: "hola"}
			Expect(db.CreateMessage(ctx, message)).To(Succeed())
			Expect(db.MarkProcessed(ctx, message.ID)).To(Succeed())

			stored, err := db.GetMessage(ctx, message.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Processed).To(BeTrue())
		})

		It("reports unknown messages", func() {
			Expect(db.MarkProcessed(ctx, "missing")).To(MatchError(ErrNotFound))
		})
	})

	Describe("GetMessage", func() {
		It("reports unknown messages", func() {
			_, err := db.GetMessage(ctx, "missing")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("CreateTransaction", func() {
		var message *Message

		BeforeEach(func() {
			message = &Message{Text: "Café $50"}
			Expect(db.CreateMessage(ctx, message)).To(Succeed())
		})

		It("stores the transaction", func() {
			tx := &Transaction{
				Amount:       decimal.RequireFromString("50.25"),
				Currency:     "MXN",
				Type:         TypeExpense,
				Date:         "2024-05-22",
				RawMessageID: message.ID,
			}
			Expect(db.CreateTransaction(ctx, tx)).To(Succeed())
			Expect(tx.ID).NotTo(BeEmpty())

			transactions, err := db.ListTransactions(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(transactions).To(HaveLen(1))
			Expect(transactions[0].Amount.Equal(decimal.RequireFromString("50.25"))).To(BeTrue())
			Expect(transactions[0].RawMessageID).To(Equal(message.ID))
		})

		It("requires the raw message to exist", func() {
			tx := &Transaction{Amount: decimal.NewFromInt(1), Type: TypeExpense, RawMessageID: "missing"}
			Expect(db.CreateTransaction(ctx, tx)).To(MatchError(ErrNotFound))

			transactions, err := db.ListTransactions(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(transactions).To(BeEmpty())
		})
	})

	Describe("ListTransactions", func() {
		It("orders by date descending", func() {
			message := &Message{Text: "varios"}
			Expect(db.CreateMessage(ctx, message)).To(Succeed())
			for _, date := range []string{"2024-01-10", "2024-05-22", "2023-12-31"} {
				tx := &Transaction{Amount: decimal.NewFromInt(1), Type: TypeExpense, Date: date, RawMessageID: message.ID}
				Expect(db.CreateTransaction(ctx, tx)).To(Succeed())
			}

			transactions, err := db.ListTransactions(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(transactions).To(HaveLen(3))
			Expect(transactions[0].Date).To(Equal("2024-05-22"))
			Expect(transactions[1].Date).To(Equal("2024-01-10"))
			Expect(transactions[2].Date).To(Equal("2023-12-31"))
		})
	})

	Describe("reopening", func() {
		It("keeps data across restarts", func() {
			message := &Message{Text: "persistente"}
			Expect(db.CreateMessage(ctx, message)).To(Succeed())
			Expect(db.Close()).To(Succeed())

			var err error
			db, err = NewBoltDB(dbPath)
			Expect(err).NotTo(HaveOccurred())
			stored, err := db.GetMessage(ctx, message.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Text).To(Equal("persistente"))
		})
	})
})
