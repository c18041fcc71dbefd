package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dailysend/internal/config"
	"github.com/dailysend/internal/dispatch"
	"github.com/dailysend/internal/model"
	"github.com/dailysend/internal/recipients"
)

// RunsHandler starts passes from the web form and reports their progress.
type RunsHandler struct {
	BaseHandler
	ctx              context.Context
	loop             *dispatch.Loop
	runs             *Registry
	uploadDir        string
	maxUploadSize    int64
	progressInterval time.Duration
}

// NewRunsHandler returns a handler whose passes run under ctx, the process
// lifetime, rather than the request that started them.
func NewRunsHandler(ctx context.Context, logger *slog.Logger, loop *dispatch.Loop, runs *Registry, cfg *config.Config) *RunsHandler {
	return &RunsHandler{
		BaseHandler:      BaseHandler{Logger: logger},
		ctx:              ctx,
		loop:             loop,
		runs:             runs,
		uploadDir:        cfg.UploadDir,
		maxUploadSize:    int64(cfg.MaxUploadSizeMB) << 20,
		progressInterval: cfg.ProgressInterval,
	}
}

// Create validates the form, loads the recipient list and starts a pass.
func (h *RunsHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		h.Logger.Warn("runs: form parse failed", "err", err)
		h.errorResponse(w, r, http.StatusBadRequest, "form too large or invalid")
		return
	}
	defer r.MultipartForm.RemoveAll()

	id := uuid.NewString()
	dir := filepath.Join(h.uploadDir, "dailysend-"+id)

	req := model.JobRequest{
		Sender:     r.FormValue(model.FieldSender),
		Secret:     r.FormValue(model.FieldSecret),
		Subject:    r.FormValue(model.FieldSubject),
		Body:       r.FormValue(model.FieldBody),
		DailyLimit: r.FormValue(model.FieldDailyLimit),
		SendTime:   r.FormValue(model.FieldSendTime),
	}

	var err error
	if req.RecipientsFile, err = saveUpload(r, dir, model.FieldRecipientsFile); err != nil {
		h.discard(dir)
		h.serverErrorResponse(w, r, err)
		return
	}
	if req.Attachment, err = saveUpload(r, dir, model.FieldAttachment); err != nil {
		h.discard(dir)
		h.serverErrorResponse(w, r, err)
		return
	}

	if err := req.Validate(); err != nil {
		h.discard(dir)
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			h.fieldErrorResponse(w, r, verr.Field, verr.Error())
			return
		}
		h.serverErrorResponse(w, r, err)
		return
	}

	list, err := recipients.Load(req.RecipientsFile)
	if err != nil {
		h.discard(dir)
		h.Logger.Warn("runs: recipient list rejected", "err", err)
		msg := err.Error()
		var lerr *recipients.LoadError
		if errors.As(err, &lerr) && lerr.Err != nil {
			// the saved path means nothing to the user
			msg = strings.ReplaceAll(lerr.Err.Error(), req.RecipientsFile, filepath.Base(req.RecipientsFile))
		}
		h.fieldErrorResponse(w, r, model.FieldRecipientsFile, "could not read recipient list: "+msg)
		return
	}

	job, err := req.Job(list)
	if err != nil {
		h.discard(dir)
		h.serverErrorResponse(w, r, err)
		return
	}

	pass := dispatch.Start(h.ctx, h.loop, job)
	h.runs.Add(id, pass)
	go func() {
		<-pass.Done()
		h.discard(dir)
	}()

	h.Logger.Info("runs: pass started",
		"id", id,
		"sender", job.Sender.Address,
		"recipients", len(job.Recipients),
		"daily_limit", job.DailyLimit,
		"send_time", job.TargetTime.String(),
	)

	w.Header().Set("Location", "/api/runs/"+id)
	h.writeJSON(w, r, http.StatusAccepted, runCreated{
		ID:         id,
		Limit:      job.DailyLimit,
		Recipients: len(job.Recipients),
	})
}

type runCreated struct {
	ID         string `json:"id"`
	Limit      int    `json:"limit"`
	Recipients int    `json:"recipients"`
}

type runStatus struct {
	ID         string `json:"id"`
	Sent       int    `json:"sent"`
	Limit      int    `json:"limit"`
	Recipients int    `json:"recipients"`
	Done       bool   `json:"done"`
	EmailsSent *int   `json:"emails_sent,omitempty"`
	Summary    string `json:"summary,omitempty"`
}

func statusOf(run *Run) runStatus {
	st := runStatus{
		ID:         run.ID,
		Sent:       run.Pass.Sent(),
		Limit:      run.Pass.Limit(),
		Recipients: run.Pass.Recipients(),
	}
	if result, done := run.Pass.Result(); done {
		st.Done = true
		st.Sent = result.EmailsSent
		st.EmailsSent = &result.EmailsSent
		st.Summary = result.Summary()
	}
	return st
}

// Get returns a snapshot of one pass.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	run, ok := h.runs.Get(chi.URLParam(r, "id"))
	if !ok {
		h.notFoundResponse(w, r)
		return
	}
	h.writeJSON(w, r, http.StatusOK, statusOf(run))
}

// Events streams the sent count as server-sent events every progress
// interval, then a single "done" event carrying the summary.
func (h *RunsHandler) Events(w http.ResponseWriter, r *http.Request) {
	run, ok := h.runs.Get(chi.URLParam(r, "id"))
	if !ok {
		h.notFoundResponse(w, r)
		return
	}

	rc := http.NewResponseController(w)
	// the stream outlives the server's write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(event string) error {
		if err := writeEvent(w, event, statusOf(run)); err != nil {
			return err
		}
		return rc.Flush()
	}

	if err := send("progress"); err != nil {
		return
	}

	ticker := time.NewTicker(h.progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-run.Pass.Done():
			_ = send("done")
			return
		case <-ticker.C:
			if err := send("progress"); err != nil {
				h.Logger.Debug("runs: event stream closed", "id", run.ID, "err", err)
				return
			}
		}
	}
}

func writeEvent(w io.Writer, event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
	return err
}

func (h *RunsHandler) discard(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		h.Logger.Warn("runs: failed to remove uploads", "dir", dir, "err", err)
	}
}

// saveUpload copies the uploaded file in field into dir and returns its
// path, or "" when the field was left empty.
func saveUpload(r *http.Request, dir, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read upload %s: %w", field, err)
	}
	defer file.Close()

	if err := os.MkdirAll(filepath.Join(dir, field), 0o700); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	// one file per field, so the original name can be kept for the
	// attachment's filename and the list's format
	path := filepath.Join(dir, field, sanitizeFilename(header.Filename))
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create upload %s: %w", field, err)
	}

	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		return "", fmt.Errorf("write upload %s: %w", field, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("write upload %s: %w", field, err)
	}
	return path, nil
}

// sanitizeFilename removes path components and dangerous characters
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "\x00", "")
	if len(name) > 100 {
		ext := filepath.Ext(name)
		if len(ext) > 10 {
			ext = ""
		}
		name = name[:100-len(ext)] + ext
	}
	if name == "" || name == "." || name == ".." {
		name = "upload"
	}
	return name
}
