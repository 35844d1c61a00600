package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/cjeanneret/PhotoBooth/internal/hw/camera"
	"github.com/cjeanneret/PhotoBooth/internal/logic/capture"
	"github.com/cjeanneret/PhotoBooth/internal/logic/compose"
	"github.com/cjeanneret/PhotoBooth/internal/logic/filter"
	"github.com/cjeanneret/PhotoBooth/internal/logic/store"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Booth is the session surface the handlers drive. *capture.Session
// implements it.
type Booth interface {
	Start(ctx context.Context) error
	Stop() error
	Open() bool
	Touch()
	RequestCapture(ctx context.Context) (*store.Photo, error)
	Settings() capture.Settings
	SetFilter(kind filter.Kind)
	SetLayout(layout compose.Layout) error
	SetBorderColor(hex string) error
	SetMirror(on bool)
	State() capture.State
	Latest() *store.Photo
	Photos() []*store.Photo
	Photo(id string) (*store.Photo, error)
}

// SettingsRequest is the PUT /settings body. Absent fields are left unchanged.
type SettingsRequest struct {
	Filter      *string `json:"filter"`
	Layout      *string `json:"layout"`
	BorderColor *string `json:"borderColor"`
	Mirror      *bool   `json:"mirror"`
}

// ConfigResponse is returned by GET /config: the current settings and the
// choices the UI can offer.
type ConfigResponse struct {
	Settings   capture.Settings    `json:"settings"`
	State      capture.State       `json:"state"`
	CameraOpen bool                `json:"cameraOpen"`
	Filters    []filter.Kind       `json:"filters"`
	Layouts    []compose.Layout    `json:"layouts"`
	Frames     []compose.FrameInfo `json:"frames"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Booth       Booth
	Frames      *compose.Registry
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If booth is nil, session routes return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, booth Booth, frames *compose.Registry, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Booth:       booth,
		Frames:      frames,
		staticFS:    staticFS,
	}
}

// statusFor maps session errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, capture.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, camera.ErrSourceTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, camera.ErrSourceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, compose.ErrUnknownFrame), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, compose.ErrInsufficientShots):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// ready rejects the request when no session is wired.
func (h *Handlers) ready(w http.ResponseWriter) bool {
	if h.Booth == nil {
		http.Error(w, "session not configured", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleConfig returns the current settings and the available choices.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	layouts := compose.Layouts()
	frames := h.Frames.List()
	for _, fr := range frames {
		layouts = append(layouts, compose.Custom(fr.ID))
	}
	if frames == nil {
		frames = []compose.FrameInfo{}
	}
	writeJSON(w, http.StatusOK, ConfigResponse{
		Settings:   h.Booth.Settings(),
		State:      h.Booth.State(),
		CameraOpen: h.Booth.Open(),
		Filters:    filter.Kinds(),
		Layouts:    layouts,
		Frames:     frames,
	})
}

// HandleSettings applies a partial settings update. Every field is
// validated before any is applied.
func (h *Handlers) HandleSettings(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	var (
		kind   filter.Kind
		layout compose.Layout
		err    error
	)
	if req.Filter != nil {
		if kind, err = filter.Parse(*req.Filter); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if req.Layout != nil {
		if layout, err = compose.ParseLayout(*req.Layout); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if layout.Kind == compose.CustomOverlay && !h.Frames.Has(layout.FrameID) {
			writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", compose.ErrUnknownFrame, layout.FrameID))
			return
		}
	}
	if req.BorderColor != nil {
		if _, err := compose.ParseColor(*req.BorderColor); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	if req.Filter != nil {
		h.Booth.SetFilter(kind)
	}
	if req.Layout != nil {
		if err := h.Booth.SetLayout(layout); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
	}
	if req.BorderColor != nil {
		if err := h.Booth.SetBorderColor(*req.BorderColor); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if req.Mirror != nil {
		h.Booth.SetMirror(*req.Mirror)
	}
	writeJSON(w, http.StatusOK, h.Booth.Settings())
}

// HandleCameraStart acquires the camera and waits for its first frame.
func (h *Handlers) HandleCameraStart(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	if err := h.Booth.Start(r.Context()); err != nil {
		log.Printf("camera start failed: %v", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// HandleCameraStop releases the camera.
func (h *Handlers) HandleCameraStop(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	if err := h.Booth.Stop(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// HandleInteraction records user activity for the idle watchdog.
func (h *Handlers) HandleInteraction(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	h.Booth.Touch()
	w.WriteHeader(http.StatusNoContent)
}

// HandleCapture runs one capture and returns the stored photo's metadata.
// The request blocks for the whole sequence; progress is pushed over SSE.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	photo, err := h.Booth.RequestCapture(r.Context())
	if err != nil {
		log.Printf("capture failed: %v", err)
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Location", "/photos/"+photo.ID)
	writeJSON(w, http.StatusCreated, photo)
}

// HandlePhotos lists photo metadata, newest first.
func (h *Handlers) HandlePhotos(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	photos := h.Booth.Photos()
	if photos == nil {
		photos = []*store.Photo{}
	}
	writeJSON(w, http.StatusOK, photos)
}

// HandleLatestPhoto serves the newest photo as PNG.
func (h *Handlers) HandleLatestPhoto(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	p := h.Booth.Latest()
	if p == nil {
		writeError(w, http.StatusNotFound, store.ErrNotFound)
		return
	}
	servePNG(w, r, p)
}

// HandlePhoto serves one photo as PNG. ?download=1 asks the browser to save it.
func (h *Handlers) HandlePhoto(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	p, err := h.Booth.Photo(r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	servePNG(w, r, p)
}

func servePNG(w http.ResponseWriter, r *http.Request, p *store.Photo) {
	disposition := "inline"
	if download, _ := strconv.ParseBool(r.URL.Query().Get("download")); download {
		disposition = "attachment"
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(p.PNG)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, p.Filename()))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(p.PNG)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	if h.Booth != nil {
		// Late joiners start from the current state.
		st := h.Booth.State()
		snap := eventStatus(capture.Event{Kind: capture.EventState, State: st.String(), Shot: st.Shot, Total: st.Total, Remaining: st.Remaining})
		if msg, ok := h.Broadcaster.encode(snap); ok {
			w.Write([]byte("data: " + msg + "\n\n"))
		}
	}
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
