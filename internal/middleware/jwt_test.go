package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/evolnow/backend/internal/auth"
	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/internal/store/memory"
)

func TestJWT_ResolvesLiveUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	s := memory.New()
	u := &models.User{FirstName: "A", LastName: "B", Email: "a@example.org"}
	require.NoError(t, s.CreateUser(ctx, u))
	jwtSvc := auth.NewJWTService("secret", 1)

	r := gin.New()
	r.GET("/me", JWT(jwtSvc, s, zap.NewNop()), func(c *gin.Context) {
		c.String(http.StatusOK, Actor(c).UserID.String())
	})
	get := func(header string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		return w
	}

	token, _, err := jwtSvc.Generate(u.ID, u.Email)
	require.NoError(t, err)
	w := get("Bearer " + token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, u.ID.String(), w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, get("").Code)
	assert.Equal(t, http.StatusUnauthorized, get("Token "+token).Code)

	ghost, _, err := jwtSvc.Generate(uuid.New(), "ghost@example.org")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get("Bearer "+ghost).Code)

	require.NoError(t, s.DeleteUser(ctx, u.ID, uuid.Nil))
	assert.Equal(t, http.StatusUnauthorized, get("Bearer "+token).Code)
}

func TestActor_Absent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, Actor(c))
}
