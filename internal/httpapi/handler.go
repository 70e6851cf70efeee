// Package httpapi exposes the current session over a small JSON HTTP API.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/matheus3301/wabridge/internal/session"
	"github.com/matheus3301/wabridge/internal/status"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// invalidValue is the message reported for every field that fails validation.
const invalidValue = "Invalid value"

// Sessions resolves the live session on every request.
type Sessions interface {
	Current() (session.Session, error)
	Status() status.State
}

// Response is the envelope of every JSON reply. Validation failures fill
// Message; everything else fills Response.
type Response struct {
	Status   bool `json:"status"`
	Response any  `json:"response,omitempty"`
	Message  any  `json:"message,omitempty"`
}

// StatusInfo is returned by GET /status.
type StatusInfo struct {
	State     status.State `json:"state"`
	Connected bool         `json:"connected"`
	Phone     string       `json:"phone,omitempty"`
}

// phoneNumberer is implemented by sessions that know their paired number.
type phoneNumberer interface {
	PhoneNumber() string
}

type handler struct {
	sessions Sessions
	logger   *zap.Logger
}

// NewRouter builds the routes.
func NewRouter(sessions Sessions, logger *zap.Logger) http.Handler {
	h := &handler{sessions: sessions, logger: logger}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(AccessLog(logger))
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "wabridge is running\n")
	})
	r.Get("/status", h.status)
	r.Post("/send-message", h.sendMessage)
	r.Post("/send-media", h.sendMedia)
	r.Get("/add-member", h.addMember)
	r.Post("/add-member", h.addMember)
	r.Get("/check-number", h.checkNumber)
	return r
}

func (h *handler) status(w http.ResponseWriter, _ *http.Request) {
	state := h.sessions.Status()
	info := StatusInfo{State: state, Connected: state == status.Open}
	if sess, err := h.sessions.Current(); err == nil {
		if p, ok := sess.(phoneNumberer); ok {
			info.Phone = p.PhoneNumber()
		}
	}
	writeJSON(w, http.StatusOK, Response{Status: true, Response: info})
}

func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	fields, ok := h.read(w, r)
	if !ok {
		return
	}
	if invalid := validate(fields, "number", "message"); len(invalid) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, Response{Status: false, Message: invalid})
		return
	}
	sess, ok := h.current(w)
	if !ok {
		return
	}
	resp, err := sess.SendText(r.Context(), fields["number"], fields["message"])
	h.reply(w, r, "send message", resp, err)
}

func (h *handler) sendMedia(w http.ResponseWriter, r *http.Request) {
	fields, ok := h.read(w, r)
	if !ok {
		return
	}
	sess, ok := h.current(w)
	if !ok {
		return
	}
	resp, err := sess.SendMedia(r.Context(), fields["number"], session.Media{
		URL:     fields["file"],
		Caption: fields["caption"],
	})
	h.reply(w, r, "send media", resp, err)
}

func (h *handler) addMember(w http.ResponseWriter, r *http.Request) {
	fields, ok := h.read(w, r)
	if !ok {
		return
	}
	if invalid := validate(fields, "number", "groupId"); len(invalid) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, Response{Status: false, Message: invalid})
		return
	}
	sess, ok := h.current(w)
	if !ok {
		return
	}
	if sender := fields["sender"]; sender != "" {
		h.logger.Info("adding group member",
			zap.String("sender", sender),
			zap.String("group", fields["groupId"]),
			zap.String("request_id", RequestIDFrom(r.Context())))
	}
	resp, err := sess.UpdateGroupParticipants(r.Context(), fields["groupId"], []string{fields["number"]}, session.ParticipantAdd)
	h.reply(w, r, "add member", resp, err)
}

func (h *handler) checkNumber(w http.ResponseWriter, r *http.Request) {
	number := r.URL.Query().Get("number")
	if invalid := validate(map[string]string{"number": number}, "number"); len(invalid) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, Response{Status: false, Message: invalid})
		return
	}
	sess, ok := h.current(w)
	if !ok {
		return
	}
	resp, err := sess.OnWhatsApp(r.Context(), []string{number})
	h.reply(w, r, "check number", resp, err)
}

func (h *handler) current(w http.ResponseWriter) (session.Session, bool) {
	sess, err := h.sessions.Current()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, Response{Status: false, Message: err.Error()})
		return nil, false
	}
	return sess, true
}

func (h *handler) reply(w http.ResponseWriter, r *http.Request, op string, resp any, err error) {
	if err != nil {
		h.logger.Error(op+" failed", zap.Error(err), zap.String("request_id", RequestIDFrom(r.Context())))
		writeJSON(w, http.StatusInternalServerError, Response{Status: false, Response: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: true, Response: resp})
}

// read merges the query string with a JSON, urlencoded or multipart body.
// Body values win.
func (h *handler) read(w http.ResponseWriter, r *http.Request) (map[string]string, bool) {
	fields, err := readFields(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Status: false, Message: err.Error()})
		return nil, false
	}
	return fields, true
}

func readFields(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	fields := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var body map[string]any
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode body: %w", err)
		}
		for k, v := range body {
			switch val := v.(type) {
			case nil:
			case string:
				fields[k] = val
			case json.Number:
				fields[k] = val.String()
			case bool:
				fields[k] = fmt.Sprint(val)
			default:
				return nil, fmt.Errorf("field %q must be a string", k)
			}
		}
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("parse form: %w", err)
		}
		for k, v := range r.PostForm {
			if len(v) > 0 {
				fields[k] = v[0]
			}
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return nil, fmt.Errorf("parse multipart form: %w", err)
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()
		for k, v := range r.MultipartForm.Value {
			if len(v) > 0 {
				fields[k] = v[0]
			}
		}
	}
	return fields, nil
}

// validate reports every required field that is missing or blank.
func validate(fields map[string]string, required ...string) map[string]string {
	invalid := make(map[string]string)
	for _, name := range required {
		if govalidator.IsNull(strings.TrimSpace(fields[name])) {
			invalid[name] = invalidValue
		}
	}
	return invalid
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
