package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/tokengate/internal/models"
	"github.com/huangang/tokengate/internal/services"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupAuthTest(t *testing.T) (*services.TokenService, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.User{}, &models.AuthToken{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	ttl := 10 * time.Hour
	tokens := services.NewTokenService(db, &services.TokenSettings{
		HashAlgorithm:        "sha512",
		TokenCharacterLength: 64,
		TTL:                  &ttl,
	})

	raw, _, err := tokens.Issue(1, nil)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return tokens, raw
}

func newProtectedRouter(tokens *services.TokenService, prefix string) *gin.Engine {
	router := gin.New()
	router.GET("/protected", TokenAuthRequired(tokens, prefix), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c)})
	})
	return router
}

func TestTokenAuthRequired_ValidToken(t *testing.T) {
	tokens, raw := setupAuthTest(t)
	router := newProtectedRouter(tokens, "")

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Token "+raw)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, expected 200, body: %s", w.Code, w.Body.String())
	}
}

func TestTokenAuthRequired_MissingHeader(t *testing.T) {
	tokens, _ := setupAuthTest(t)
	router := newProtectedRouter(tokens, "")

	req := httptest.NewRequest("GET", "/protected", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, expected 401", w.Code)
	}
}

func TestTokenAuthRequired_BadFormat(t *testing.T) {
	tokens, raw := setupAuthTest(t)
	router := newProtectedRouter(tokens, "")

	tests := []struct {
		name   string
		header string
	}{
		{"wrong prefix", "Bearer " + raw},
		{"no separator", "Token" + raw},
		{"prefix only", "Token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/protected", nil)
			req.Header.Set("Authorization", tt.header)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, expected 401", w.Code)
			}
		})
	}
}

// All verification failures must be indistinguishable at the HTTP boundary:
// same status, same body.
func TestTokenAuthRequired_UniformRejection(t *testing.T) {
	tokens, raw := setupAuthTest(t)
	router := newProtectedRouter(tokens, "")

	last := raw[len(raw)-1]
	flipped := byte('0')
	if last == '0' {
		flipped = '1'
	}

	credentials := []struct {
		name  string
		value string
	}{
		{"too short", "abc"},
		{"unknown lookup key", "0000000000000000000000000000000000000000000000000000000000000000"},
		{"digest mismatch", raw[:len(raw)-1] + string(flipped)},
	}

	var bodies []string
	for _, tt := range credentials {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/protected", nil)
			req.Header.Set("Authorization", "Token "+tt.value)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, expected 401", w.Code)
			}
			bodies = append(bodies, w.Body.String())
		})
	}

	for i := 1; i < len(bodies); i++ {
		if bodies[i] != bodies[0] {
			t.Errorf("rejection bodies differ: %q vs %q", bodies[0], bodies[i])
		}
	}
}

func TestTokenAuthRequired_RevokedToken(t *testing.T) {
	tokens, raw := setupAuthTest(t)
	router := newProtectedRouter(tokens, "")

	if err := tokens.RevokeAll(1); err != nil {
		t.Fatalf("RevokeAll() error = %v", err)
	}

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Token "+raw)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, expected 401 after revocation", w.Code)
	}
}

func TestTokenAuthRequired_CustomPrefix(t *testing.T) {
	tokens, raw := setupAuthTest(t)
	router := newProtectedRouter(tokens, "Bearer")

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, expected 200 with custom prefix", w.Code)
	}

	req = httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Token "+raw)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, expected 401 for default prefix", w.Code)
	}
}

func TestTokenAuthRequired_PopulatesContext(t *testing.T) {
	tokens, raw := setupAuthTest(t)
	gin.SetMode(gin.TestMode)

	router := gin.New()
	var gotUserID uint
	var gotRecord *models.AuthToken
	router.GET("/protected", TokenAuthRequired(tokens, ""), func(c *gin.Context) {
		gotUserID = GetUserID(c)
		gotRecord = GetAuthToken(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Token "+raw)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", w.Code)
	}
	if gotUserID != 1 {
		t.Errorf("GetUserID() = %d, expected 1", gotUserID)
	}
	if gotRecord == nil {
		t.Fatal("GetAuthToken() returned nil")
	}
	if gotRecord.UserID != 1 {
		t.Errorf("record.UserID = %d, expected 1", gotRecord.UserID)
	}
}
