package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSONError writes a {"error": message} body
func writeJSONError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleWebhook ingests one inbound chat message and answers with TwiML
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("Error parsing webhook form", "error", err)
		writeJSONError(w, "Error parsing form", http.StatusInternalServerError)
		return
	}

	// A provider disconnect must not abort ingestion; client timeouts still apply
	ctx := context.WithoutCancel(r.Context())
	outcome, err := s.service.Ingest(ctx, inboundFromForm(r.PostForm))
	if err != nil {
		slog.Error("Error ingesting message", "error", err)
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	body, err := renderTwiML(outcome.Reply)
	if err != nil {
		slog.Error("Error rendering reply", "message_id", outcome.Message.ID, "error", err)
		writeJSONError(w, "Error rendering reply", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// periodFromQuery reads year and a one-indexed month from the query string
func periodFromQuery(q url.Values) (Period, error) {
	var period Period

	if v := q.Get("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			return Period{}, errors.New("year must be a number")
		}
		period.Year = &year
	}

	if v := q.Get("month"); v != "" {
		month, err := strconv.Atoi(v)
		if err != nil || month < 1 || month > 12 {
			return Period{}, errors.New("month must be between 1 and 12")
		}
		month--
		period.Month = &month
	}

	return period, nil
}

// handleListTransactions returns the filtered and sorted ledger
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period, err := periodFromQuery(q)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	order, err := ParseSortOrder(q.Get("sort"))
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	transactions, err := s.service.ListTransactions(r.Context(), period, order)
	if err != nil {
		slog.Error("Error listing transactions", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, transactions)
}

// handleSummary returns income, expense and category totals
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	period, err := periodFromQuery(r.URL.Query())
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	summary, err := s.service.Summarize(r.Context(), period)
	if err != nil {
		slog.Error("Error summarizing transactions", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, summary)
}

// handleYears returns the years the dashboard can filter by
func (s *Server) handleYears(w http.ResponseWriter, r *http.Request) {
	years, err := s.service.AvailableYears(r.Context())
	if err != nil {
		slog.Error("Error listing years", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, years)
}

// handleListMessages returns the raw message log
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.service.ListMessages(r.Context())
	if err != nil {
		slog.Error("Error listing messages", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// Ensure we always return an array, not nil
	if messages == nil {
		messages = []*Message{}
	}

	writeJSON(w, messages)
}

// handleGetMessage returns a single message
func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Message ID required", http.StatusBadRequest)
		return
	}
	message, err := s.service.GetMessage(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		corsError(w, "Message not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Error getting message", "message_id", id, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, message)
}

// handleGetMessageMedia returns the archived attachment of a message
func (s *Server) handleGetMessageMedia(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Message ID required", http.StatusBadRequest)
		return
	}
	data, contentType, err := s.service.GetMessageMedia(r.Context(), id)
	if errors.Is(err, ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		corsError(w, "Media not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Error getting media", "message_id", id, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}
