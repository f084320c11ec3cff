package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/workstead/portal-api/internal/models"
	"github.com/workstead/portal-api/internal/service"
)

func jwtTestRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	authSvc := service.NewAuthService(nil, nil, nil, service.AuthConfig{
		AccessTokenSecret: secret,
		AccessTokenExpiry: time.Hour,
		Issuer:            "portal-api-test",
	})

	router := gin.New()
	router.Use(JWT(authSvc))
	router.GET("/", func(c *gin.Context) {
		claims, _ := c.Get(ContextUserKey)
		user := claims.(*models.JWTClaims)
		c.String(http.StatusOK, user.UserID)
	})
	return router
}

func signedTestToken(t *testing.T, secret string, expiresAt time.Time) string {
	t.Helper()
	claims := &models.JWTClaims{
		UserID: "user-1",
		Role:   models.RoleEmployee,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "portal-api-test",
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestJWTMiddlewareAllowsValidToken(t *testing.T) {
	router := jwtTestRouter("test-secret")
	token := signedTestToken(t, "test-secret", time.Now().Add(time.Hour))

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	if recorder.Body.String() != "user-1" {
		t.Fatalf("unexpected body: %s", recorder.Body.String())
	}
}

func TestJWTMiddlewareRejectsMissingHeader(t *testing.T) {
	router := jwtTestRouter("test-secret")

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestJWTMiddlewareRejectsMalformedHeader(t *testing.T) {
	router := jwtTestRouter("test-secret")

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Token abc")
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestJWTMiddlewareRejectsExpiredToken(t *testing.T) {
	router := jwtTestRouter("test-secret")
	token := signedTestToken(t, "test-secret", time.Now().Add(-time.Minute))

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestRequireRolesBlocksOtherRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleEmployee})
	})
	router.GET("/admin", RequireRoles(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestRequireRolesAllowsListedRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	})
	router.GET("/admin", RequireRoles(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}
