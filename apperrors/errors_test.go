package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("list products: %w", Internal("Database query error", cause))

	var appErr *Error
	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusInternalServerError, appErr.Code)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Database query error: connection reset", appErr.Error())
}

func TestRespond(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err  error
		code int
		body string
	}{
		{NotFound("Product not found"), http.StatusNotFound, `{"detail":"Product not found"}`},
		{fmt.Errorf("wrapped: %w", BadRequest("bad")), http.StatusBadRequest, `{"detail":"bad"}`},
		{errors.New("boom"), http.StatusInternalServerError, `{"detail":"Internal server error"}`},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		Respond(c, tc.err)
		assert.Equal(t, tc.code, w.Code)
		assert.JSONEq(t, tc.body, w.Body.String())
	}
}
