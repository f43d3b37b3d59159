package api_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/versehub/community-api/internal/api"
	"github.com/versehub/community-api/internal/auth"
	"github.com/versehub/community-api/internal/config"
	"github.com/versehub/community-api/internal/mocks"
	"github.com/versehub/community-api/internal/models"
	"github.com/versehub/community-api/internal/service"
)

// setupStoreRouter wires the real services to an in-memory store so a test
// can follow a flow across several endpoints
func setupStoreRouter(t *testing.T) (*testEnv, *mocks.Store, *models.Identity) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := mocks.NewStore()
	admin := store.AddIdentity("admin@example.com", nil)
	store.AddAssignment(admin.ID, models.RoleAdmin, nil, true)

	cfg := &config.Config{
		Server:     config.ServerConfig{Port: "8080", MaxUploadSize: 64 * 1024},
		Directory:  config.DirectoryConfig{RefreshSchedule: config.ScheduleOff, RefreshTimeout: time.Second},
		Invitation: config.InvitationConfig{TTL: time.Hour, TokenLength: 32, PasswordCost: 4},
	}
	services := service.NewServices(mocks.NewRepositories(store), cfg, nil, zerolog.Nop())

	env := &testEnv{verifier: auth.NewVerifier("test-secret", "")}
	env.router = api.NewRouter(services, cfg, env.verifier, nil, zerolog.Nop())
	return env, store, admin
}

func firstResult(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	results, ok := body["results"].([]interface{})
	if !ok || len(results) == 0 {
		t.Fatalf("Expected results, got %v", body)
	}
	return results[0].(map[string]interface{})
}

func verify(t *testing.T, env *testEnv, userID, token string) bool {
	t.Helper()
	w := env.doJSON(t, "POST", "/v1/invitations/verify", "", models.VerifyEmailRequest{UserID: userID, Token: token})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 from verify, got %d. Body: %s", w.Code, w.Body.String())
	}
	return decode(t, w)["verified"] == true
}

func TestBulkCreateThenVerify(t *testing.T) {
	env, store, admin := setupStoreRouter(t)

	w := env.doJSON(t, "POST", "/v1/admin/users/bulk", admin.ID, models.BulkUsersRequest{
		Emails: []string{"Newcomer@Example.com"},
		Roles:  []string{models.RoleUser},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", w.Code, w.Body.String())
	}

	result := firstResult(t, decode(t, w))
	userID, _ := result["user_id"].(string)
	token, _ := result["invitation_token"].(string)
	password, _ := result["temporary_password"].(string)
	if userID == "" || token == "" || password == "" {
		t.Fatalf("Expected user_id, invitation_token and temporary_password, got %v", result)
	}

	if err := auth.CheckPassword(store.Identities[userID].PasswordHash, password); err != nil {
		t.Errorf("Returned temporary password does not match the stored hash: %v", err)
	}

	if !verify(t, env, userID, token) {
		t.Fatal("Expected verification with the returned token to succeed")
	}
	if verify(t, env, userID, token) {
		t.Error("Expected a consumed token to be rejected")
	}
}

func TestInviteThenVerify(t *testing.T) {
	env, store, admin := setupStoreRouter(t)

	w := env.doJSON(t, "POST", "/v1/admin/invitations", admin.ID, models.BulkUsersRequest{
		Emails: []string{"reader@example.com"},
		Roles:  []string{models.RoleStaff},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", w.Code, w.Body.String())
	}

	invitation, ok := firstResult(t, decode(t, w))["invitation"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected invitation in result, got %s", w.Body.String())
	}
	token, _ := invitation["invitation_token"].(string)
	if len(token) != 32 {
		t.Fatalf("Expected a 32 character invitation_token, got %q", token)
	}

	// The invitee signs up with the identity provider before verifying
	reader := store.AddIdentity("reader@example.com", nil)

	if verify(t, env, reader.ID, "not-"+token) {
		t.Error("Expected a wrong token to be rejected")
	}
	if !verify(t, env, reader.ID, token) {
		t.Fatal("Expected verification with the returned token to succeed")
	}
}

func TestVerifyEmail_MalformedUserID(t *testing.T) {
	env, store, _ := setupStoreRouter(t)

	// Stands in for the uuid cast error PostgreSQL raises on a malformed id
	store.SetError("Identity.GetByID", errors.New(`invalid input syntax for type uuid: "abc"`))

	for _, userID := range []string{"abc", "urn:uuid:6f1c3a52-8d7e-4b0a-9c55-2f4e1d7b8a01", ""} {
		if verify(t, env, userID, "some-token") {
			t.Errorf("Expected %q to be rejected", userID)
		}
	}
}

func TestAuthMiddleware_NonUUIDSubject(t *testing.T) {
	env, _, _ := setupStoreRouter(t)

	claims := auth.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "abc",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}

	for _, path := range []string{"/v1/access/admin", "/v1/verses/daily"} {
		req := httptest.NewRequest("GET", path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected status 401, got %d. Body: %s", path, w.Code, w.Body.String())
		}
	}
}
