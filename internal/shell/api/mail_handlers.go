package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dochero/dochero/internal/core/domain"
	"github.com/dochero/dochero/internal/shell/mail"
)

// providerTitle is the provider name used in error messages.
func providerTitle(p domain.Provider) string {
	switch p {
	case domain.ProviderGmail:
		return "Gmail"
	case domain.ProviderOutlook:
		return "Outlook"
	}
	return string(p)
}

// =============================================================================
// OAuth Handlers
// =============================================================================

func (h *Handler) handleInitiate(p domain.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req InitiateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid JSON", err.Error())
			return
		}

		authURL, err := h.mail.InitiateURL(p, req.UserID)
		if err != nil {
			if errors.Is(err, domain.ErrMissingUserID) {
				h.writeError(w, http.StatusBadRequest, "missing_user_id", err.Error())
				return
			}
			h.writeError(w, http.StatusInternalServerError, "Failed to initiate "+providerTitle(p)+" OAuth", err.Error())
			return
		}
		h.writeJSON(w, http.StatusOK, InitiateResponse{AuthURL: authURL})
	}
}

// handleCallback completes the OAuth flow and always redirects to the
// frontend, flagging whether the mailbox was connected.
func (h *Handler) handleCallback(p domain.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		err := h.mail.Connect(r.Context(), p, q.Get("code"), q.Get("state"))
		if err != nil {
			h.logger.Error("oauth callback failed", "provider", string(p), "error", err)
		}
		http.Redirect(w, r, h.mail.FrontendRedirect(p, err == nil), http.StatusTemporaryRedirect)
	}
}

func (h *Handler) handleStatus(p domain.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := h.mail.Status(r.Context(), p, chi.URLParam(r, "user_id"))
		if err != nil {
			h.logger.Error("status lookup failed", "provider", string(p), "error", err)
			h.writeError(w, http.StatusInternalServerError, "Failed to get "+providerTitle(p)+" status", err.Error())
			return
		}
		h.writeJSON(w, http.StatusOK, StatusResponse{Connected: status.Connected, Accounts: status.Accounts})
	}
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err.Error())
		return
	}

	updated, err := h.mail.UpdateSettings(r.Context(), req.UserID, req.SubjectFilter, req.TokenID)
	if err != nil {
		if errors.Is(err, domain.ErrMissingUserID) {
			h.writeError(w, http.StatusBadRequest, "missing_user_id", err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, "Failed to update Gmail settings", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, SettingsResponse{Updated: updated})
}

// =============================================================================
// Poll Handlers
// =============================================================================

func (h *Handler) handlePoll(p domain.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		processed, err := h.mail.Poll(r.Context(), p)
		if err != nil {
			h.logger.Error("poll failed", "provider", string(p), "error", err)
			h.writeError(w, http.StatusInternalServerError, "store_select_failed", err.Error())
			return
		}
		h.writeJSON(w, http.StatusOK, PollResponse{Status: "ok", Processed: processed})
	}
}

// =============================================================================
// Attachment Handler
// =============================================================================

func (h *Handler) handleAttachment(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, messageID, attachmentID := q.Get("user_id"), q.Get("message_id"), q.Get("attachment_id")
	if userID == "" || messageID == "" || attachmentID == "" {
		h.writeError(w, http.StatusBadRequest, "missing_parameters", "user_id, message_id and attachment_id are required")
		return
	}

	att, err := h.mail.Attachment(r.Context(), userID, messageID, attachmentID)
	if err != nil {
		var (
			fetchErr *mail.FetchError
			tokenErr *mail.TokenError
		)
		switch {
		case errors.Is(err, mail.ErrUserNotFound):
			h.writeError(w, http.StatusNotFound, "user not found", "")
		case errors.As(err, &fetchErr):
			h.writeError(w, http.StatusBadRequest, "failed to fetch "+fetchErr.What, mail.Detail(fetchErr.Err))
		case errors.As(err, &tokenErr):
			h.writeError(w, http.StatusBadGateway, "token unavailable", err.Error())
		default:
			h.logger.Error("attachment download failed", "error", err)
			h.writeError(w, http.StatusInternalServerError, "attachment download failed", err.Error())
		}
		return
	}

	w.Header().Set("Content-Type", att.MimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+att.FileName+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(att.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(att.Data); err != nil {
		h.logger.Warn("failed to write attachment", "error", err)
	}
}
