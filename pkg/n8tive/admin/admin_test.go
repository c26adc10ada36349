package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/n8tive/platform/pkg/n8tive/auth"
	"github.com/n8tive/platform/pkg/n8tive/config"
	"github.com/n8tive/platform/pkg/n8tive/models"
	"github.com/n8tive/platform/pkg/n8tive/permissions"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testJWTSecret = "test-secret"

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return db
}

func testConfig() *config.Config {
	cfg := &config.Config{PriceIDPro: "price_pro", FallbackPlan: "pro"}
	cfg.Finalize()
	return cfg
}

// setupTestRouter wires the admin routes behind the same middleware chain the
// server uses.
func setupTestRouter(db *gorm.DB, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(db, cfg)
	adminGroup := r.Group("/admin")
	adminGroup.Use(auth.AuthMiddleware(testJWTSecret), auth.RequirePrivileged(db))
	handler.RegisterRoutes(adminGroup)
	return r
}

func createTestUser(t *testing.T, db *gorm.DB, email string, role models.Role, privileged bool) *models.User {
	user := &models.User{Email: email, Name: "Test User", Role: role, IsPrivileged: privileged, Tier: "free"}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

func tokenFor(t *testing.T, user *models.User) string {
	token, err := auth.GenerateToken(testJWTSecret, user.ID, user.Email, string(user.Role))
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	return token
}

func doJSON(router *gin.Engine, method, path, token string, payload interface{}) *httptest.ResponseRecorder {
	var body *bytes.Reader
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAdminRequiresToken(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, testConfig())

	w := doJSON(router, "GET", "/admin/waitlist", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestAdminRejectsUnprivilegedCaller(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, testConfig())

	caller := createTestUser(t, db, "user@test.com", models.RoleUser, false)
	target := createTestUser(t, db, "victim@test.com", models.RoleUser, false)

	w := doJSON(router, "POST", "/admin/toggle-subscription", tokenFor(t, caller),
		ToggleSubscriptionRequest{Email: target.Email, Tier: "enterprise"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected status 403, got %d", w.Code)
	}

	// Rejected call must leave the subscription store untouched
	var count int64
	db.Model(&models.Subscription{}).Count(&count)
	if count != 0 {
		t.Error("Forbidden request must not write subscription rows")
	}
	var refreshed models.User
	db.First(&refreshed, target.ID)
	if refreshed.Tier != "free" {
		t.Errorf("Forbidden request must not change the tier, got %s", refreshed.Tier)
	}
}

func TestAdminDemotionTakesEffectBeforeTokenExpiry(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, testConfig())

	admin := createTestUser(t, db, "admin@test.com", models.RoleAdmin, true)
	token := tokenFor(t, admin)

	if w := doJSON(router, "GET", "/admin/waitlist", token, nil); w.Code != http.StatusOK {
		t.Fatalf("Expected 200 before demotion, got %d", w.Code)
	}

	// Demote in the database; the token still claims admin
	db.Model(admin).Updates(map[string]interface{}{"role": models.RoleUser, "is_privileged": false})

	if w := doJSON(router, "GET", "/admin/waitlist", token, nil); w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 after demotion, got %d", w.Code)
	}
}

func TestCreateDevAccountIdempotent(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, testConfig())
	admin := createTestUser(t, db, "admin@test.com", models.RoleAdmin, true)
	token := tokenFor(t, admin)

	req := CreateDevAccountRequest{Email: "dev@test.com", Name: "Dev", Password: "hunter22"}
	for i := 0; i < 2; i++ {
		if w := doJSON(router, "POST", "/admin/create-dev-account", token, req); w.Code != http.StatusOK {
			t.Fatalf("Attempt %d: expected 200, got %d: %s", i, w.Code, w.Body.String())
		}
	}

	var users int64
	db.Model(&models.User{}).Where("email = ?", "dev@test.com").Count(&users)
	if users != 1 {
		t.Errorf("Expected 1 dev user, got %d", users)
	}

	var dev models.User
	db.Where("email = ?", "dev@test.com").First(&dev)
	if dev.Role != models.RoleAdmin || !dev.IsPrivileged || dev.Tier != "enterprise" {
		t.Errorf("Unexpected dev account state: %+v", dev)
	}

	var grants int64
	db.Model(&models.PermissionGrant{}).Where("user_id = ?", dev.ID).Count(&grants)
	if grants != int64(len(permissions.PrivilegedGrantSet)) {
		t.Errorf("Expected %d grants, got %d", len(permissions.PrivilegedGrantSet), grants)
	}

	var overrides int64
	db.Model(&models.Subscription{}).Where("user_id = ?", dev.ID).Count(&overrides)
	if overrides != 1 {
		t.Errorf("Expected a single override subscription row, got %d", overrides)
	}
}

func TestToggleSubscriptionReusesOverrideRow(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, testConfig())
	admin := createTestUser(t, db, "admin@test.com", models.RoleAdmin, true)
	token := tokenFor(t, admin)
	target := createTestUser(t, db, "customer@test.com", models.RoleUser, false)

	for _, tier := range []string{"pro", "business", "free"} {
		w := doJSON(router, "POST", "/admin/toggle-subscription", token,
			ToggleSubscriptionRequest{Email: target.Email, Tier: tier})
		if w.Code != http.StatusOK {
			t.Fatalf("Toggle to %s: expected 200, got %d: %s", tier, w.Code, w.Body.String())
		}
	}

	var count int64
	db.Model(&models.Subscription{}).Where("user_id = ?", target.ID).Count(&count)
	if count != 1 {
		t.Fatalf("Expected a single override row across toggles, got %d", count)
	}

	var sub models.Subscription
	db.Where("user_id = ?", target.ID).First(&sub)
	if sub.Plan != "free" || sub.Status != models.StatusCanceled {
		t.Errorf("Expected free toggle to close the override {free, canceled}, got {%s, %s}", sub.Plan, sub.Status)
	}

	var refreshed models.User
	db.First(&refreshed, target.ID)
	if refreshed.Tier != "free" || !refreshed.TierOverride {
		t.Errorf("Expected tier=free override=true, got tier=%s override=%v", refreshed.Tier, refreshed.TierOverride)
	}
}

func TestToggleSubscriptionValidation(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, testConfig())
	admin := createTestUser(t, db, "admin@test.com", models.RoleAdmin, true)
	token := tokenFor(t, admin)

	w := doJSON(router, "POST", "/admin/toggle-subscription", token,
		ToggleSubscriptionRequest{Email: admin.Email, Tier: "platinum"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown tier, got %d", w.Code)
	}

	w = doJSON(router, "POST", "/admin/toggle-subscription", token,
		ToggleSubscriptionRequest{Email: "ghost@test.com", Tier: "pro"})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown user, got %d", w.Code)
	}
}

func TestGetUserInfo(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, testConfig())
	admin := createTestUser(t, db, "admin@test.com", models.RoleAdmin, true)
	token := tokenFor(t, admin)

	target := createTestUser(t, db, "customer@test.com", models.RoleUser, false)
	db.Create(&models.Subscription{
		ProviderSubID: "sub_1", UserID: &target.ID, Plan: "pro", Status: models.StatusActive,
	})

	w := doJSON(router, "GET", "/admin/user-info?email=customer@test.com", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp UserInfoResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Email != "customer@test.com" {
		t.Errorf("Unexpected email %q", resp.Email)
	}
	if resp.Subscription.Plan != "pro" || resp.Subscription.Status != models.StatusActive {
		t.Errorf("Expected resolved subscription {pro, active}, got {%s, %s}",
			resp.Subscription.Plan, resp.Subscription.Status)
	}

	w = doJSON(router, "GET", "/admin/user-info?email=ghost@test.com", token, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown user, got %d", w.Code)
	}
}

func TestGetPermissions(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, testConfig())
	admin := createTestUser(t, db, "admin@test.com", models.RoleAdmin, true)
	token := tokenFor(t, admin)

	target := createTestUser(t, db, "dev@test.com", models.RoleUser, false)
	if err := permissions.EnsurePrivilegedGrants(db, target.ID); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}

	w := doJSON(router, "GET", "/admin/permissions?email=dev@test.com", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp struct {
		Email  string                   `json:"email"`
		Grants []models.PermissionGrant `json:"grants"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Grants) != len(permissions.PrivilegedGrantSet) {
		t.Errorf("Expected %d grants, got %d", len(permissions.PrivilegedGrantSet), len(resp.Grants))
	}
}

func TestListWaitlist(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, testConfig())
	admin := createTestUser(t, db, "admin@test.com", models.RoleAdmin, true)
	token := tokenFor(t, admin)

	db.Create(&models.WaitlistEntry{Name: "Alice", Email: "a@x.com", Product: "all"})
	db.Create(&models.WaitlistEntry{Name: "Bob", Email: "b@x.com", Product: "all"})

	w := doJSON(router, "GET", "/admin/waitlist", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp struct {
		Count   int                    `json:"count"`
		Entries []models.WaitlistEntry `json:"entries"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Count != 2 || len(resp.Entries) != 2 {
		t.Errorf("Expected 2 entries, got count=%d len=%d", resp.Count, len(resp.Entries))
	}
}
