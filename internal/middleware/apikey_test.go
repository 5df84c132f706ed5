package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func staffRequest(t *testing.T, keyHash string, headers map[string]string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/checkin", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seenStaff string
	h := StaffAPIKey(keyHash)(func(c echo.Context) error {
		seenStaff = StaffID(c)
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, h(c))
	return rec, seenStaff
}

func TestStaffAPIKeyAdmitsValidKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("gate-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	rec, staff := staffRequest(t, string(hash), map[string]string{
		"X-Api-Key":  "gate-secret",
		"X-Staff-Id": "scanner-7",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "scanner-7", staff)
}

func TestStaffAPIKeyRejectsWrongKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("gate-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	rec, _ := staffRequest(t, string(hash), map[string]string{
		"X-Api-Key":  "not-the-key",
		"X-Staff-Id": "scanner-7",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStaffAPIKeyRejectsMissingKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("gate-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	rec, _ := staffRequest(t, string(hash), map[string]string{
		"X-Staff-Id": "scanner-7",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStaffAPIKeyRequiresStaffIdentity(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("gate-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	rec, _ := staffRequest(t, string(hash), map[string]string{
		"X-Api-Key": "gate-secret",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
