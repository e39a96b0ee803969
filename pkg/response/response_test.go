package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evolnow/backend/internal/apperr"
)

func TestError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{apperr.Unauthenticated(), http.StatusUnauthorized, apperr.MsgUnauthenticated},
		{apperr.Forbidden(""), http.StatusForbidden, apperr.MsgUnauthorized},
		{apperr.ErrMustSelectOrg, http.StatusForbidden, apperr.MsgMustSelectOrg},
		{apperr.NotFound("Opportunity not found."), http.StatusNotFound, "Opportunity not found."},
		{apperr.Invalid("The name field is required."), http.StatusUnprocessableEntity, "The name field is required."},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		Error(c, tc.err)
		assert.Equal(t, tc.status, w.Code)
		var body Body
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.False(t, body.Success)
		assert.Equal(t, tc.msg, body.Error)
	}
}
