package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dailysend/internal/model"
	"github.com/dailysend/internal/web"
)

func TestFormRendersEveryField(t *testing.T) {
	rr := httptest.NewRecorder()
	Form(web.Templates, 25)(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")

	body := rr.Body.String()
	for _, field := range []string{
		model.FieldSender,
		model.FieldSecret,
		model.FieldSubject,
		model.FieldBody,
		model.FieldAttachment,
		model.FieldRecipientsFile,
		model.FieldDailyLimit,
		model.FieldSendTime,
	} {
		assert.Contains(t, body, `name="`+field+`"`)
	}
	assert.Contains(t, body, "25 MB")
}
