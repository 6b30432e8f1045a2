package admin

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"pinbot/internal/pin"
	"pinbot/internal/storage"
	"pinbot/pkg/logx"
)

// messageDTO is the wire shape of a pinned message.
type messageDTO struct {
	ID               int64     `json:"id"`
	Content          string    `json:"content"`
	MediaType        string    `json:"media_type"`
	MediaFileID      string    `json:"media_file_id,omitempty"`
	Active           bool      `json:"active"`
	SendBeforeMenu   bool      `json:"send_before_menu"`
	SendOnEveryStart bool      `json:"send_on_every_start"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toDTO(m storage.PinnedMessage) messageDTO {
	return messageDTO{
		ID:               m.ID,
		Content:          m.Content,
		MediaType:        string(m.MediaType),
		MediaFileID:      m.MediaFileID,
		Active:           m.Active,
		SendBeforeMenu:   m.SendBeforeMenu,
		SendOnEveryStart: m.SendOnEveryStart,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

type createRequest struct {
	Content          string `json:"content"`
	MediaType        string `json:"media_type,omitempty"`
	MediaFileID      string `json:"media_file_id,omitempty"`
	SendBeforeMenu   bool   `json:"send_before_menu,omitempty"`
	SendOnEveryStart bool   `json:"send_on_every_start,omitempty"`
	Broadcast        bool   `json:"broadcast,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	media := storage.MediaType(req.MediaType)
	if media == "" {
		media = storage.MediaNone
	}

	msg, rep, err := s.svc.Create(r.Context(), pin.CreateParams{
		Content:          req.Content,
		MediaType:        media,
		MediaFileID:      req.MediaFileID,
		SendBeforeMenu:   req.SendBeforeMenu,
		SendOnEveryStart: req.SendOnEveryStart,
		Broadcast:        req.Broadcast,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		Message messageDTO  `json:"message"`
		Report  *pin.Report `json:"report,omitempty"`
	}{toDTO(msg), rep})
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Broadcast bool `json:"broadcast,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, rep, err := s.svc.Activate(r.Context(), id, req.Broadcast)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Message messageDTO  `json:"message"`
		Report  *pin.Report `json:"report,omitempty"`
	}{toDTO(msg), rep})
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	msg, rep, err := s.svc.Broadcast(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Message messageDTO `json:"message"`
		Report  pin.Report `json:"report"`
	}{toDTO(msg), rep})
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	msg, err := s.svc.DeactivateActive(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if msg == nil {
		writeJSON(w, http.StatusOK, struct {
			WasActive bool `json:"was_active"`
		}{false})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		WasActive bool       `json:"was_active"`
		Message   messageDTO `json:"message"`
	}{true, toDTO(*msg)})
}

func (s *Server) handleMassUnpin(w http.ResponseWriter, r *http.Request) {
	rep, err := s.svc.MassUnpin(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	msg, err := s.svc.Active(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if msg == nil {
		writeError(w, http.StatusNotFound, "no active pinned message")
		return
	}
	writeJSON(w, http.StatusOK, toDTO(*msg))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.svc.Delete(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps domain errors onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var ce *pin.CooldownError
	switch {
	case errors.As(err, &ce):
		secs := int(ce.Remaining/time.Second) + 1
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, pin.ErrInvalidContent):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "pinned message not found")
	case errors.Is(err, storage.ErrMessageActive):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error("admin api request failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return 0, false
	}
	return id, true
}

// decodeJSON tolerates an empty body (all-default request).
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{msg})
}
