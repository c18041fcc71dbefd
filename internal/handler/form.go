package handler

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/dailysend/internal/model"
)

type formData struct {
	MaxUploadSizeMB int

	FieldSender         string
	FieldSecret         string
	FieldSubject        string
	FieldBody           string
	FieldAttachment     string
	FieldRecipientsFile string
	FieldDailyLimit     string
	FieldSendTime       string
}

// Form renders the send form.
func Form(tmpl *template.Template, maxUploadSizeMB int) http.HandlerFunc {
	data := formData{
		MaxUploadSizeMB:     maxUploadSizeMB,
		FieldSender:         model.FieldSender,
		FieldSecret:         model.FieldSecret,
		FieldSubject:        model.FieldSubject,
		FieldBody:           model.FieldBody,
		FieldAttachment:     model.FieldAttachment,
		FieldRecipientsFile: model.FieldRecipientsFile,
		FieldDailyLimit:     model.FieldDailyLimit,
		FieldSendTime:       model.FieldSendTime,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
			slog.Error("form: template error", "err", err)
		}
	}
}
