package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wavault/wavault/internal/store"
)

// StatsResponse represents the archive statistics.
type StatsResponse struct {
	TotalConversations int64 `json:"total_conversations"`
	TotalMessages      int64 `json:"total_messages"`
	TotalMedia         int64 `json:"total_media"`
	DatabaseSize       int64 `json:"database_size_bytes"`
}

// ConversationSummary represents a conversation in list responses.
type ConversationSummary struct {
	ID            int64  `json:"id"`
	WaID          string `json:"wa_id"`
	Name          string `json:"name,omitempty"`
	Kind          string `json:"kind"`
	Channel       string `json:"channel,omitempty"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	LastMessageAt string `json:"last_message_at,omitempty"`
}

// MessageSummary represents a message in list responses.
type MessageSummary struct {
	ID          int64  `json:"id"`
	WaMessageID string `json:"wa_message_id,omitempty"`
	SenderName  string `json:"sender_name,omitempty"`
	SenderPhone string `json:"sender_phone,omitempty"`
	Type        string `json:"type,omitempty"`
	Body        string `json:"body"`
	FromMe      bool   `json:"from_me"`
	SentAt      string `json:"sent_at"`

	MediaPath     string `json:"media_path,omitempty"`
	MediaMimeType string `json:"media_mime_type,omitempty"`
	MediaSize     int64  `json:"media_size,omitempty"`
	MediaDuration int64  `json:"media_duration,omitempty"`
	MediaCaption  string `json:"media_caption,omitempty"`
	MediaFilename string `json:"media_filename,omitempty"`
}

// SchedulerStatusResponse represents scheduler status.
type SchedulerStatusResponse struct {
	Running bool         `json:"running"`
	Tasks   []TaskStatus `json:"tasks"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// pagination extracts page/page_size query parameters with defaults.
func pagination(r *http.Request) (page, pageSize, offset int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}
	return page, pageSize, (page - 1) * pageSize
}

// handleStats returns archive statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats()
	if err != nil {
		s.logger.Error("failed to get stats", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve statistics")
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		TotalConversations: stats.ConversationCount,
		TotalMessages:      stats.MessageCount,
		TotalMedia:         stats.MediaCount,
		DatabaseSize:       stats.DatabaseSize,
	})
}

// handleListConversations returns a paginated list of conversations ordered
// by most recent activity.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	page, pageSize, offset := pagination(r)

	convs, total, err := s.store.ListConversations(offset, pageSize)
	if err != nil {
		s.logger.Error("failed to list conversations", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve conversations")
		return
	}

	summaries := make([]ConversationSummary, len(convs))
	for i, c := range convs {
		summaries[i] = conversationSummary(c)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":         total,
		"page":          page,
		"page_size":     pageSize,
		"conversations": summaries,
	})
}

// handleListMessages returns a paginated list of one conversation's messages
// in chronological order.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	waID := chi.URLParam(r, "waID")

	conv, err := s.store.GetConversationByWaID(waID)
	if err != nil {
		s.logger.Error("failed to get conversation", "wa_id", waID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve conversation")
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "not_found", "Conversation not found")
		return
	}

	page, pageSize, offset := pagination(r)

	messages, total, err := s.store.ListMessages(conv.ID, offset, pageSize)
	if err != nil {
		s.logger.Error("failed to list messages", "wa_id", waID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve messages")
		return
	}

	summaries := make([]MessageSummary, len(messages))
	for i, m := range messages {
		summaries[i] = messageSummary(m)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation": conversationSummary(*conv),
		"total":        total,
		"page":         page,
		"page_size":    pageSize,
		"messages":     summaries,
	})
}

// handleSchedulerStatus returns the maintenance scheduler status.
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeJSON(w, http.StatusOK, SchedulerStatusResponse{Running: false})
		return
	}
	writeJSON(w, http.StatusOK, SchedulerStatusResponse{
		Running: s.scheduler.IsRunning(),
		Tasks:   s.scheduler.Status(),
	})
}

func conversationSummary(c store.Conversation) ConversationSummary {
	out := ConversationSummary{
		ID:        c.ID,
		WaID:      c.WaID,
		Name:      c.Name.String,
		Kind:      c.Kind,
		Channel:   c.Channel.String,
		AvatarURL: c.AvatarURL.String,
	}
	if c.LastMessageAt.Valid {
		out.LastMessageAt = c.LastMessageAt.Time.UTC().Format(time.RFC3339)
	}
	return out
}

func messageSummary(m store.Message) MessageSummary {
	return MessageSummary{
		ID:            m.ID,
		WaMessageID:   m.WaMessageID.String,
		SenderName:    m.SenderName.String,
		SenderPhone:   m.SenderPhone.String,
		Type:          m.MessageType.String,
		Body:          m.MessageBody,
		FromMe:        m.IsFromMe,
		SentAt:        m.SentAt.UTC().Format(time.RFC3339),
		MediaPath:     m.MediaPath.String,
		MediaMimeType: m.MediaMimeType.String,
		MediaSize:     m.MediaSize.Int64,
		MediaDuration: m.MediaDuration.Int64,
		MediaCaption:  m.MediaCaption.String,
		MediaFilename: m.MediaFilename.String,
	}
}
