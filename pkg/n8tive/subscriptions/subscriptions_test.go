package subscriptions

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/n8tive/platform/pkg/n8tive/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

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

func setupTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(db)
	handler.RegisterRoutes(r.Group("/subscriptions"))
	return r
}

func createTestUser(t *testing.T, db *gorm.DB, email, principalID string) *models.User {
	user := &models.User{Email: email, Name: "Test User"}
	if principalID != "" {
		user.PrincipalID = &principalID
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

func TestUpsertInsertsThenUpdates(t *testing.T) {
	db := setupTestDB(t)

	end := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)
	row, err := UpsertByProviderRef(db, "sub_123", UpsertFields{
		ProviderCustomerID: "cus_1",
		ProviderPriceID:    "price_pro",
		CustomerEmail:      "a@x.com",
		Plan:               "pro",
		Status:             models.StatusActive,
		CurrentPeriodEnd:   &end,
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if row.Plan != "pro" || row.Status != models.StatusActive {
		t.Errorf("Unexpected row: plan=%s status=%s", row.Plan, row.Status)
	}

	row, err = UpsertByProviderRef(db, "sub_123", UpsertFields{
		ProviderPriceID: "price_pro",
		Plan:            "pro",
		Status:          models.StatusPastDue,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if row.Status != models.StatusPastDue {
		t.Errorf("Expected status past_due, got %s", row.Status)
	}
	// Sparse update must not erase the stored customer identifiers
	if row.CustomerEmail != "a@x.com" || row.ProviderCustomerID != "cus_1" {
		t.Errorf("Customer identifiers were erased: email=%q customer=%q", row.CustomerEmail, row.ProviderCustomerID)
	}

	var count int64
	db.Model(&models.Subscription{}).Where("provider_sub_id = ?", "sub_123").Count(&count)
	if count != 1 {
		t.Errorf("Expected exactly 1 row for the reference, got %d", count)
	}
}

// Applying a set of events in any order and then applying the set again must
// leave the row equal to the last applied element. There is no sequencing;
// only the final write matters.
func TestUpsertLastWriteWins(t *testing.T) {
	db := setupTestDB(t)

	events := []UpsertFields{
		{Plan: "pro", Status: models.StatusActive, ProviderPriceID: "price_pro"},
		{Plan: "business", Status: models.StatusActive, ProviderPriceID: "price_biz"},
		{Plan: "business", Status: models.StatusCanceled, ProviderPriceID: "price_biz", CancelAtPeriodEnd: true},
	}

	orders := [][]int{{0, 1, 2}, {2, 0, 1}, {1, 2, 0}}
	for _, order := range orders {
		ref := "sub_order_" + string(rune('a'+order[0])) + string(rune('a'+order[1])) + string(rune('a'+order[2]))
		var last UpsertFields
		// Apply once, then replay the same sequence
		for pass := 0; pass < 2; pass++ {
			for _, i := range order {
				if _, err := UpsertByProviderRef(db, ref, events[i]); err != nil {
					t.Fatalf("Upsert failed: %v", err)
				}
				last = events[i]
			}
		}

		var row models.Subscription
		if err := db.Where("provider_sub_id = ?", ref).First(&row).Error; err != nil {
			t.Fatalf("Row missing for %s: %v", ref, err)
		}
		if row.Plan != last.Plan || row.Status != last.Status || row.CancelAtPeriodEnd != last.CancelAtPeriodEnd {
			t.Errorf("Order %v: expected final %+v, got plan=%s status=%s cancel=%v",
				order, last, row.Plan, row.Status, row.CancelAtPeriodEnd)
		}

		var count int64
		db.Model(&models.Subscription{}).Where("provider_sub_id = ?", ref).Count(&count)
		if count != 1 {
			t.Errorf("Order %v: expected 1 row, got %d", order, count)
		}
	}
}

func TestCurrentForUserDefaults(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "nobody@x.com", "")

	state := CurrentForUser(db, user.ID)
	if state.Plan != "free" || state.Status != models.StatusNone {
		t.Errorf("Expected {free, none}, got {%s, %s}", state.Plan, state.Status)
	}
}

func TestCurrentForUserPicksNewestRow(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "a@x.com", "")

	old := models.Subscription{
		ProviderSubID: "sub_old", UserID: &user.ID, Plan: "pro", Status: models.StatusCanceled,
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}
	db.Create(&old)
	db.Create(&models.Subscription{
		ProviderSubID: "sub_new", UserID: &user.ID, Plan: "business", Status: models.StatusActive,
	})

	state := CurrentForUser(db, user.ID)
	if state.Plan != "business" || state.Status != models.StatusActive {
		t.Errorf("Expected newest row {business, active}, got {%s, %s}", state.Plan, state.Status)
	}
}

func TestStatusQueryDefaults(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	req := httptest.NewRequest("GET", "/subscriptions/status?email=ghost@x.com", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var state CurrentState
	json.Unmarshal(w.Body.Bytes(), &state)
	if state.Plan != "free" || state.Status != models.StatusNone {
		t.Errorf(`Expected {plan: "free", status: "none"}, got {%s, %s}`, state.Plan, state.Status)
	}
}

func TestStatusQueryByPrincipal(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	user := createTestUser(t, db, "p@x.com", "principal-1")
	db.Create(&models.Subscription{
		ProviderSubID: "sub_p", UserID: &user.ID, Plan: "pro", Status: models.StatusActive,
	})

	req := httptest.NewRequest("GET", "/subscriptions/status?principal_id=principal-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var state CurrentState
	json.Unmarshal(w.Body.Bytes(), &state)
	if state.Plan != "pro" || state.Status != models.StatusActive {
		t.Errorf("Expected {pro, active}, got {%s, %s}", state.Plan, state.Status)
	}
}

func TestStatusQueryUnlinkedSubscription(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	// Webhook arrived before any identity sync: row exists with no user
	db.Create(&models.Subscription{
		ProviderSubID: "sub_orphan", CustomerEmail: "early@x.com", Plan: "pro", Status: models.StatusActive,
	})

	req := httptest.NewRequest("GET", "/subscriptions/status?email=early@x.com", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var state CurrentState
	json.Unmarshal(w.Body.Bytes(), &state)
	if state.Plan != "pro" {
		t.Errorf("Expected orphan row to resolve by email, got plan %s", state.Plan)
	}
}

func TestStatusQueryRequiresIdentifier(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	req := httptest.NewRequest("GET", "/subscriptions/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}
