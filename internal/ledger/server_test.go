package ledger

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/shopspring/decimal"

	"github.com/Pasttor/finanzas/internal/extraction"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		extractor   *mockExtractor
		storage     *mockStorage
		auth        BasicAuth
		webhookAuth WebhookAuth
		server      *Server
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		db = newMockDB()
		extractor = &mockExtractor{}
		storage = newMockStorage()
		auth = BasicAuth{}
		webhookAuth = WebhookAuth{}
	})

	JustBeforeEach(func() {
		now := time.Date(2024, 5, 23, 9, 30, 0, 0, time.UTC)
		service := NewServiceWithDeps(db, db, &mockFetcher{}, extractor, storage, &fixedTimeSource{now: now})
		server = NewServerWithMux(service, auth, webhookAuth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	postWebhook := func(form url.Values, signature string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, ghttpServer.URL()+"/api/webhook", strings.NewReader(form.Encode()))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if signature != "" {
			req.Header.Set("X-Twilio-Signature", signature)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	readBody := func(resp *http.Response) string {
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return string(body)
	}

	Describe("POST /api/webhook", func() {
		var form url.Values

		BeforeEach(func() {
			form = url.Values{
				"From":       {"whatsapp:+5215550001111"},
				"Body":       {"Café $50 ayer"},
				"MessageSid": {"SM123"},
			}
		})

		When("extraction succeeds", func() {
			BeforeEach(func() {
				extractor.result = extraction.Result{Data: cafeData()}
			})

			It("answers with the confirmation as TwiML", func() {
				resp := postWebhook(form, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("text/xml"))
				body := readBody(resp)
				Expect(body).To(HavePrefix("<?xml"))
				Expect(body).To(ContainSubstring("<Message>✅ Ticket procesado: gasto de $50"))
				Expect(db.transactions).To(HaveLen(1))
			})
		})

		When("extraction fails", func() {
			BeforeEach(func() {
				extractor.result = extraction.Result{Reason: "model call failed", Err: errors.New("quota")}
			})

			It("still answers 200 with the fallback", func() {
				resp := postWebhook(form, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(readBody(resp)).To(ContainSubstring("<Message>" + FallbackReply + "</Message>"))
			})
		})

		When("the message cannot be recorded", func() {
			BeforeEach(func() {
				db.createErr = errors.New("database down")
			})

			It("answers 500 with a JSON error", func() {
				resp := postWebhook(form, "")
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
				var payload map[string]string
				Expect(json.Unmarshal([]byte(readBody(resp)), &payload)).To(Succeed())
				Expect(payload["error"]).To(ContainSubstring("database down"))
			})
		})

		When("signatures are required", func() {
			BeforeEach(func() {
				webhookAuth = WebhookAuth{AuthToken: "12345", URL: "https://finanzas.example.com/api/webhook"}
				extractor.result = extraction.Result{Data: cafeData()}
			})

			It("accepts a signed request", func() {
				resp := postWebhook(form, "QClPR67VFbrClDsGrgJ0WBYiz6g=")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
				Expect(db.messages).To(HaveLen(1))
			})

			It("rejects an unsigned request before recording it", func() {
				resp := postWebhook(form, "")
				Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
				resp.Body.Close()
				Expect(db.messages).To(BeEmpty())
			})
		})
	})

	Describe("GET /api/transactions", func() {
		BeforeEach(func() {
			db.transactions = []*Transaction{
				{ID: "t1", Amount: decimal.NewFromInt(10), Type: "gasto", Date: "2024-05-22"},
				{ID: "t2", Amount: decimal.NewFromInt(90), Type: "gasto", Date: "2024-05-01"},
				{ID: "t3", Amount: decimal.NewFromInt(50), Type: "gasto", Date: "2024-04-01"},
			}
		})

		It("filters by one-indexed month and sorts by amount", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/transactions?year=2024&month=5&sort=high")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			var transactions []*Transaction
			Expect(json.Unmarshal([]byte(readBody(resp)), &transactions)).To(Succeed())
			Expect(ids(transactions)).To(Equal([]string{"t2", "t1"}))
		})

		It("returns an empty array when nothing matches", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/transactions?year=2019")
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.TrimSpace(readBody(resp))).To(Equal("[]"))
		})

		DescribeTable("rejects bad queries",
			func(query string) {
				resp, err := http.Get(ghttpServer.URL() + "/api/transactions?" + query)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			},
			Entry("month out of range", "month=13"),
			Entry("month zero", "month=0"),
			Entry("year not a number", "year=abc"),
			Entry("unknown sort", "sort=random"),
		)
	})

	Describe("GET /api/summary", func() {
		BeforeEach(func() {
			db.transactions = []*Transaction{
				{ID: "t1", Amount: decimal.NewFromInt(100), Type: "gasto", Category: "Comida", Date: "2024-05-22"},
				{ID: "t2", Amount: decimal.NewFromInt(500), Type: "ingreso", Date: "2024-05-01"},
			}
		})

		It("returns the totals", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/summary?year=2024")
			Expect(err).NotTo(HaveOccurred())
			var summary Summary
			Expect(json.Unmarshal([]byte(readBody(resp)), &summary)).To(Succeed())
			Expect(summary.Balance.Equal(decimal.NewFromInt(400))).To(BeTrue())
			Expect(summary.Categories).To(HaveLen(1))
		})
	})

	Describe("GET /api/years", func() {
		It("includes the current year", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/years")
			Expect(err).NotTo(HaveOccurred())
			var years []int
			Expect(json.Unmarshal([]byte(readBody(resp)), &years)).To(Succeed())
			Expect(years).To(Equal([]int{2024}))
		})
	})

	Describe("messages", func() {
		BeforeEach(func() {
			db.messages["m1"] = &Message{ID: "m1", Text: "hola", MediaURL: "https://example.com/ME1", MediaContentType: "image/png"}
			storage.files["m1.png"] = []byte("png-bytes")
		})

		It("lists messages", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/messages")
			Expect(err).NotTo(HaveOccurred())
			var messages []*Message
			Expect(json.Unmarshal([]byte(readBody(resp)), &messages)).To(Succeed())
			Expect(messages).To(HaveLen(1))
		})

		It("returns one message", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/messages/m1")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(readBody(resp)).To(ContainSubstring(`"message_text":"hola"`))
		})

		It("answers 404 for unknown messages", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/messages/missing")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})

		It("serves archived media", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/messages/m1/media")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
			Expect(readBody(resp)).To(Equal("png-bytes"))
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
		})

		It("rejects requests without credentials", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/transactions")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
			resp.Body.Close()
		})

		It("accepts valid credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/transactions", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:secret")))
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})

		It("does not apply to the webhook", func() {
			extractor.result = extraction.Result{Data: cafeData()}
			resp := postWebhook(url.Values{"Body": {"Café $50"}}, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})
	})

	Describe("CORS", func() {
		It("answers preflight requests", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/transactions", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			resp.Body.Close()
		})
	})
})
