package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const testSecret = "test-secret"

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func signToken(t *testing.T, userID, role string) string {
	t.Helper()
	claims := tokenClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func okHandler() (http.HandlerFunc, *Identity) {
	var seen Identity
	return func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}, &seen
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	auth := NewAuthenticator(testSecret, testLogger())
	next, _ := okHandler()

	req := httptest.NewRequest("GET", "/transactions", nil)
	rec := httptest.NewRecorder()
	auth.RequireAuth(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", rec.Code)
	}
}

func TestRequireAuthRejectsBadSignature(t *testing.T) {
	auth := NewAuthenticator(testSecret, testLogger())

	claims := tokenClaims{UserID: "u1", Role: "customer"}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	forged, _ := token.SignedString([]byte("other-secret"))

	next, _ := okHandler()
	req := httptest.NewRequest("GET", "/transactions", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec := httptest.NewRecorder()
	auth.RequireAuth(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", rec.Code)
	}
}

func TestRequireAuthPutsIdentityInContext(t *testing.T) {
	auth := NewAuthenticator(testSecret, testLogger())
	next, seen := okHandler()

	req := httptest.NewRequest("GET", "/transactions", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "cust-7", "customer"))
	rec := httptest.NewRecorder()
	auth.RequireAuth(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}
	if seen.UserID != "cust-7" || seen.Role != "customer" {
		t.Errorf("Identity = %+v", seen)
	}
}

func TestRequireAdminRejectsCustomerRole(t *testing.T) {
	auth := NewAuthenticator(testSecret, testLogger())
	next, _ := okHandler()

	req := httptest.NewRequest("POST", "/products", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "cust-7", "customer"))
	rec := httptest.NewRecorder()
	auth.RequireAdmin(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("Status = %d, want 403", rec.Code)
	}
}

func TestRequireAdminAllowsAdminRole(t *testing.T) {
	auth := NewAuthenticator(testSecret, testLogger())
	next, _ := okHandler()

	req := httptest.NewRequest("POST", "/products", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "admin-1", RoleAdmin))
	rec := httptest.NewRecorder()
	auth.RequireAdmin(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200", rec.Code)
	}
}
