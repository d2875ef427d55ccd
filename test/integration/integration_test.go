//go:build integration
// +build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"feedback-backend/internal/config"
	"feedback-backend/internal/models"
	"feedback-backend/internal/server"

	"gorm.io/gorm"
)

// setupTestServerFast creates a test server with SQLite in-memory and no Redis
// This is much faster than using containers (no Docker needed, no container startup time)
// It uses the actual server.Initialize() method to avoid code duplication
func setupTestServerFast(t *testing.T) (*server.Server, func()) {
	// Create test config with SQLite DSN (server will auto-detect SQLite driver)
	cfg := &config.Config{}
	cfg.Server.Port = "8080"
	cfg.Server.Host = "localhost"
	cfg.Server.DeployDomain = "localhost:8080"
	cfg.Server.Debug = false
	cfg.Database.DSN = "file::memory:?cache=shared" // SQLite in-memory - server will detect and use SQLite driver
	cfg.Database.RedisURI = ""                      // Empty Redis URI - server will skip Redis setup
	cfg.Auth.SessionSecret = "test-secret-key-for-testing-only"
	cfg.Resend.DefaultSender = "test@example.com"

	// Create server using the actual server.New() method
	srv := server.New(cfg)
	srv.Echo.Logger.SetLevel(log.ERROR)

	// Initialize server - this will use SQLite (detected from DSN) and skip Redis (empty URI)
	err := srv.Initialize()
	require.NoError(t, err)

	// Cleanup function (SQLite in-memory is automatically cleaned up)
	cleanup := func() {
		if srv.DB != nil {
			sqlDB, _ := srv.DB.DB()
			if sqlDB != nil {
				sqlDB.Close()
			}
		}
	}

	return srv, cleanup
}

// createTestUser is a helper to create a user in the test database
func createTestUser(t *testing.T, db *gorm.DB, name, email string, role models.Role) *models.User {
	user := &models.User{
		Name:     name,
		Email:    email,
		Role:     role,
		Password: "password123",
	}
	err := db.Create(user).Error
	require.NoError(t, err)
	return user
}

// doJSON posts a JSON body and returns the recorder
func doJSON(srv *server.Server, method, path string, payload interface{}) *httptest.ResponseRecorder {
	var body bytes.Buffer
	if payload != nil {
		_ = json.NewEncoder(&body).Encode(payload)
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)
	return rec
}

func TestRegisterAndLogin(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	registerReq := map[string]interface{}{
		"name":     "john doe",
		"email":    "john.doe@gmail.com",
		"role":     "manager",
		"password": "securepassword123",
	}

	rec := doJSON(srv, http.MethodPost, "/api/user/register", registerReq)
	if rec.Code != http.StatusCreated {
		t.Logf("Response body: %s", rec.Body.String())
	}
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "John Doe", gjson.Get(rec.Body.String(), "name").String())
	assert.Equal(t, "manager", gjson.Get(rec.Body.String(), "role").String())

	// Duplicate registration is rejected
	rec = doJSON(srv, http.MethodPost, "/api/user/register", registerReq)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User already exists", gjson.Get(rec.Body.String(), "detail").String())

	// Login with the right password
	rec = doJSON(srv, http.MethodPost, "/api/user/login", map[string]interface{}{
		"email":    "john.doe@gmail.com",
		"password": "securepassword123",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, gjson.Get(rec.Body.String(), "token").String())
	assert.Equal(t, "john.doe@gmail.com", gjson.Get(rec.Body.String(), "email").String())

	// Wrong password
	rec = doJSON(srv, http.MethodPost, "/api/user/login", map[string]interface{}{
		"email":    "john.doe@gmail.com",
		"password": "wrongpassword",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", gjson.Get(rec.Body.String(), "detail").String())

	// Unknown user
	rec = doJSON(srv, http.MethodPost, "/api/user/login", map[string]interface{}{
		"email":    "ghost@gmail.com",
		"password": "whatever123",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User does not exist, please register first", gjson.Get(rec.Body.String(), "detail").String())
}

func TestFeedbackCreateAcknowledgeFlow(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	createTestUser(t, srv.DB, "Flow Manager", "flow.manager@x.com", models.RoleManager)
	createTestUser(t, srv.DB, "Flow Employee", "flow.employee@x.com", models.RoleEmployee)

	rec := doJSON(srv, http.MethodPost, "/api/feedback/create", map[string]interface{}{
		"created_by_email": "flow.manager@x.com",
		"employee_email":   "flow.employee@x.com",
		"strengths":        "Ships reliably, reviews carefully.",
		"areas_to_improve": "Could speak up more in planning.",
		"sentiment":        "positive",
		"tags":             []string{"delivery"},
	})
	if rec.Code != http.StatusOK {
		t.Logf("Response body: %s", rec.Body.String())
	}
	require.Equal(t, http.StatusOK, rec.Code)
	recordID := gjson.Get(rec.Body.String(), "id").String()
	require.NotEmpty(t, recordID)

	// The employee's list shows it as submitted
	req := httptest.NewRequest(http.MethodGet, "/api/feedback/get-all?email=flow.employee@x.com", nil)
	listRec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(listRec, req)
	require.Equal(t, http.StatusOK, listRec.Code)
	list := gjson.Parse(listRec.Body.String()).Array()
	require.Len(t, list, 1)
	assert.Equal(t, recordID, list[0].Get("id").String())
	assert.Equal(t, "submitted", list[0].Get("status").String())
	assert.Equal(t, "Flow Manager", list[0].Get("created_by_name").String())

	// The creator reads the record back
	req = httptest.NewRequest(http.MethodGet, "/api/feedback/"+recordID+"?requestor_email=flow.manager@x.com", nil)
	getRec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(getRec, req)
	assert.Equal(t, http.StatusOK, getRec.Code)

	// Capabilities for the subject show acknowledge
	req = httptest.NewRequest(http.MethodGet, "/api/feedback/"+recordID+"/capabilities?viewer_email=flow.employee@x.com", nil)
	capRec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(capRec, req)
	require.Equal(t, http.StatusOK, capRec.Code)
	assert.True(t, gjson.Get(capRec.Body.String(), "acknowledge").Bool())
	assert.False(t, gjson.Get(capRec.Body.String(), "edit_content").Bool())

	// Acknowledge succeeds once
	rec = doJSON(srv, http.MethodPost, "/api/feedback/"+recordID+"/acknowledge", map[string]interface{}{
		"employee_email": "flow.employee@x.com",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	// And only once
	rec = doJSON(srv, http.MethodPost, "/api/feedback/"+recordID+"/acknowledge", map[string]interface{}{
		"employee_email": "flow.employee@x.com",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NotEmpty(t, gjson.Get(rec.Body.String(), "detail").String())

	var stored models.FeedbackRecord
	require.NoError(t, srv.DB.Where("id = ?", recordID).First(&stored).Error)
	assert.Equal(t, models.StatusAcknowledged, stored.Status)
	assert.NotNil(t, stored.AcknowledgedAt)
}

func TestRequestDraftSubmitFlow(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	createTestUser(t, srv.DB, "Req Manager", "req.manager@x.com", models.RoleManager)
	createTestUser(t, srv.DB, "Req Employee", "req.employee@x.com", models.RoleEmployee)

	rec := doJSON(srv, http.MethodPost, "/api/feedback/request", map[string]interface{}{
		"requestor_email": "req.employee@x.com",
		"giver_email":     "req.manager@x.com",
		"tags":            []string{"q3-review"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	recordID := gjson.Get(rec.Body.String(), "id").String()
	require.NotEmpty(t, recordID)

	var stored models.FeedbackRecord
	require.NoError(t, srv.DB.Where("id = ?", recordID).First(&stored).Error)
	assert.Equal(t, models.StatusRequested, stored.Status)
	assert.NotNil(t, stored.RequestedAt)
	assert.Nil(t, stored.SubmittedAt)

	// Requests can only go to managers
	rec = doJSON(srv, http.MethodPost, "/api/feedback/request", map[string]interface{}{
		"requestor_email": "req.manager@x.com",
		"giver_email":     "req.employee@x.com",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The manager saves a draft response
	rec = doJSON(srv, http.MethodPost, "/api/feedback/draft", map[string]interface{}{
		"id":               recordID,
		"created_by_email": "req.manager@x.com",
		"strengths":        "Great quarter overall.",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, srv.DB.Where("id = ?", recordID).First(&stored).Error)
	assert.Equal(t, models.StatusDraft, stored.Status)

	// A draft born from a request cannot be deleted
	req := httptest.NewRequest(http.MethodDelete, "/api/feedback/"+recordID+"?requestor_email=req.manager@x.com", nil)
	delRec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(delRec, req)
	assert.Equal(t, http.StatusConflict, delRec.Code)
	assert.Equal(t, "requested feedback cannot be deleted", gjson.Get(delRec.Body.String(), "detail").String())

	// Submitting without required fields fails
	rec = doJSON(srv, http.MethodPost, "/api/feedback/create", map[string]interface{}{
		"id":               recordID,
		"created_by_email": "req.manager@x.com",
		"strengths":        "Great quarter overall.",
		"sentiment":        "positive",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Full submission lands
	rec = doJSON(srv, http.MethodPost, "/api/feedback/create", map[string]interface{}{
		"id":               recordID,
		"created_by_email": "req.manager@x.com",
		"strengths":        "Great quarter overall.",
		"areas_to_improve": "Keep an eye on estimation accuracy.",
		"sentiment":        "positive",
		"tags":             []string{"q3-review"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, srv.DB.Where("id = ?", recordID).First(&stored).Error)
	assert.Equal(t, models.StatusSubmitted, stored.Status)
	assert.NotNil(t, stored.SubmittedAt)
	assert.NotNil(t, stored.RequestedAt)
}

func TestDeleteDraft(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	createTestUser(t, srv.DB, "Del Manager", "del.manager@x.com", models.RoleManager)
	createTestUser(t, srv.DB, "Del Employee", "del.employee@x.com", models.RoleEmployee)

	rec := doJSON(srv, http.MethodPost, "/api/feedback/draft", map[string]interface{}{
		"created_by_email": "del.manager@x.com",
		"employee_email":   "del.employee@x.com",
		"strengths":        "scratch notes",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	recordID := gjson.Get(rec.Body.String(), "id").String()

	// Only the creator may delete
	req := httptest.NewRequest(http.MethodDelete, "/api/feedback/"+recordID+"?requestor_email=del.employee@x.com", nil)
	delRec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(delRec, req)
	assert.Equal(t, http.StatusForbidden, delRec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/feedback/"+recordID+"?requestor_email=del.manager@x.com", nil)
	delRec = httptest.NewRecorder()
	srv.Echo.ServeHTTP(delRec, req)
	assert.Equal(t, http.StatusOK, delRec.Code)

	// Gone
	req = httptest.NewRequest(http.MethodGet, "/api/feedback/"+recordID+"?requestor_email=del.manager@x.com", nil)
	getRec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(getRec, req)
	assert.Equal(t, http.StatusNotFound, getRec.Code)
}

func TestAnonymousMaskingOverAPI(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	createTestUser(t, srv.DB, "Anon Peer", "anon.peer@x.com", models.RoleEmployee)
	createTestUser(t, srv.DB, "Anon Subject", "anon.subject@x.com", models.RoleEmployee)

	record := &models.FeedbackRecord{
		CreatedByEmail: "anon.peer@x.com",
		CreatedByRole:  models.RoleEmployee,
		EmployeeEmail:  "anon.subject@x.com",
		Strengths:      "Pairs generously.",
		AreasToImprove: "Estimates run optimistic.",
		Sentiment:      models.SentimentNeutral,
		IsAnon:         true,
		Status:         models.StatusSubmitted,
	}
	require.NoError(t, srv.DB.Create(record).Error)

	// The subject never learns the creator
	req := httptest.NewRequest(http.MethodGet, "/api/feedback/"+record.ID+"?requestor_email=anon.subject@x.com", nil)
	rec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Anonymous", gjson.Get(rec.Body.String(), "created_by_email").String())

	req = httptest.NewRequest(http.MethodGet, "/api/feedback/get-all?email=anon.subject@x.com", nil)
	rec = httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	list := gjson.Parse(rec.Body.String()).Array()
	require.Len(t, list, 1)
	assert.Equal(t, "Anonymous", list[0].Get("created_by_email").String())
	assert.Equal(t, "Anonymous", list[0].Get("created_by_name").String())

	// The creator sees their own record unmasked
	req = httptest.NewRequest(http.MethodGet, "/api/feedback/"+record.ID+"?requestor_email=anon.peer@x.com", nil)
	rec = httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anon.peer@x.com", gjson.Get(rec.Body.String(), "created_by_email").String())
}

func TestTeamCreateAndDashboard(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	createTestUser(t, srv.DB, "Ops Admin", "ops.admin@x.com", models.RoleAdmin)
	createTestUser(t, srv.DB, "Team Manager", "team.manager@x.com", models.RoleManager)
	createTestUser(t, srv.DB, "Team Member A", "team.membera@x.com", models.RoleEmployee)
	createTestUser(t, srv.DB, "Team Member B", "team.memberb@x.com", models.RoleEmployee)

	teamReq := map[string]interface{}{
		"manager_email": "team.manager@x.com",
		"member_emails": []string{"team.membera@x.com", "team.memberb@x.com"},
	}

	// Non-admins are rejected
	rec := doJSON(srv, http.MethodPost, "/api/team/create?admin_email=team.manager@x.com", teamReq)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Only admins can create teams", gjson.Get(rec.Body.String(), "detail").String())

	rec = doJSON(srv, http.MethodPost, "/api/team/create?admin_email=ops.admin@x.com", teamReq)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, gjson.Get(rec.Body.String(), "id").String())

	// Members see the manager first in the roster
	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/team-members?user_email=team.membera@x.com", nil)
	teamRec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(teamRec, req)
	require.Equal(t, http.StatusOK, teamRec.Code)
	roster := gjson.Parse(teamRec.Body.String()).Array()
	require.Len(t, roster, 2)
	assert.Equal(t, "team.manager@x.com", roster[0].Get("email").String())

	// Users off any team get a 404
	req = httptest.NewRequest(http.MethodGet, "/api/dashboard/team-members?user_email=ops.admin@x.com", nil)
	teamRec = httptest.NewRecorder()
	srv.Echo.ServeHTTP(teamRec, req)
	assert.Equal(t, http.StatusNotFound, teamRec.Code)
	assert.Equal(t, "User is not part of any team", gjson.Get(teamRec.Body.String(), "detail").String())

	// Feedback count reflects the manager's submissions
	fbRec := doJSON(srv, http.MethodPost, "/api/feedback/create", map[string]interface{}{
		"created_by_email": "team.manager@x.com",
		"employee_email":   "team.membera@x.com",
		"strengths":        "Dependable in incidents.",
		"areas_to_improve": "More design docs please.",
		"sentiment":        "positive",
	})
	require.Equal(t, http.StatusOK, fbRec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/dashboard/feedback-count?email=team.manager@x.com", nil)
	countRec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(countRec, req)
	require.Equal(t, http.StatusOK, countRec.Code)
	assert.Equal(t, int64(1), gjson.Get(countRec.Body.String(), "count").Int())
	assert.Equal(t, "Feedbacks Given", gjson.Get(countRec.Body.String(), "label").String())

	req = httptest.NewRequest(http.MethodGet, "/api/dashboard/feedback-timeline?email=team.membera@x.com", nil)
	tlRec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(tlRec, req)
	require.Equal(t, http.StatusOK, tlRec.Code)
	timeline := gjson.Parse(tlRec.Body.String()).Array()
	require.Len(t, timeline, 1)
	assert.Equal(t, "Team Manager", timeline[0].Get("creator").String())

	req = httptest.NewRequest(http.MethodGet, "/api/dashboard/sentiment-trends?email=team.manager@x.com", nil)
	trendRec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(trendRec, req)
	require.Equal(t, http.StatusOK, trendRec.Code)
	assert.Len(t, gjson.Get(trendRec.Body.String(), "labels").Array(), 1)
	assert.Equal(t, int64(1), gjson.Get(trendRec.Body.String(), "positive.0").Int())
}

func TestProtectedUserEndpoint(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	user := createTestUser(t, srv.DB, "Jwt User", "jwt.user@x.com", models.RoleEmployee)

	// No token, no entry
	req := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
	rec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := srv.JwtIssuer.GenerateToken(user.Email)
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	rec = httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jwt.user@x.com", gjson.Get(rec.Body.String(), "email").String())
}
