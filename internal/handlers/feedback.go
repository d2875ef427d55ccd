package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"feedback-backend/internal/common"
	"feedback-backend/internal/config"
	"feedback-backend/internal/directory"
	"feedback-backend/internal/email"
	"feedback-backend/internal/feedback"
	"feedback-backend/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// listCacheTTL bounds how stale a cached feedback list may be. The web app
// polls on an interval, so reads this old are acceptable.
const listCacheTTL = 5 * time.Second

type FeedbackHandler struct {
	common.ServerState
	Engine *feedback.Engine
	Dir    directory.Directory
}

func NewFeedbackHandler(db *gorm.DB, cfg *config.Config, redisClient *redis.Client, emailClient email.EmailClient) *FeedbackHandler {
	dir := directory.NewGormDirectory(db)
	return &FeedbackHandler{
		ServerState: common.ServerState{
			DB:          db,
			Config:      cfg,
			Redis:       redisClient,
			EmailClient: emailClient,
		},
		Engine: feedback.NewEngine(db, dir),
		Dir:    dir,
	}
}

// FeedbackUpsertRequest is the body of both /feedback/create and
// /feedback/draft. With an id it operates on an existing record (finishing a
// request or saving a draft), without one it creates a new record.
type FeedbackUpsertRequest struct {
	ID             string           `json:"id"`
	CreatedByEmail string           `json:"created_by_email" validate:"required,email"`
	EmployeeEmail  string           `json:"employee_email" validate:"omitempty,email"`
	Strengths      string           `json:"strengths"`
	AreasToImprove string           `json:"areas_to_improve"`
	Sentiment      models.Sentiment `json:"sentiment"`
	Tags           []string         `json:"tags"`
	IsAnon         bool             `json:"is_anon"`
}

func (r *FeedbackUpsertRequest) content() feedback.Content {
	return feedback.Content{
		Strengths:      r.Strengths,
		AreasToImprove: r.AreasToImprove,
		Sentiment:      r.Sentiment,
		Tags:           r.Tags,
		IsAnon:         r.IsAnon,
	}
}

type RequestFeedbackRequest struct {
	RequestorEmail string   `json:"requestor_email" validate:"required,email"`
	GiverEmail     string   `json:"giver_email" validate:"required,email"`
	Tags           []string `json:"tags"`
}

type AcknowledgeRequest struct {
	EmployeeEmail string `json:"employee_email" validate:"required,email"`
}

// FeedbackSummary is the list-view shape: enough for the table row and the
// preview, not the full markdown bodies.
type FeedbackSummary struct {
	ID             string           `json:"id"`
	CreatedByEmail string           `json:"created_by_email"`
	CreatedByName  string           `json:"created_by_name"`
	EmployeeEmail  string           `json:"employee_email"`
	EmployeeName   string           `json:"employee_name"`
	Preview        string           `json:"preview"`
	Sentiment      models.Sentiment `json:"sentiment"`
	Status         models.Status    `json:"status"`
	Tags           []string         `json:"tags"`
	IsAnon         bool             `json:"is_anon"`
	RequestedAt    *time.Time       `json:"requested_at"`
	SubmittedAt    *time.Time       `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	AcknowledgedAt *time.Time       `json:"acknowledged_at"`
}

// Create submits feedback: a new record straight to submitted, or, when an
// id is present, the final submission of an existing draft or request.
func (h *FeedbackHandler) Create(c echo.Context) error {
	req := new(FeedbackUpsertRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	actor, err := lookupActingUser(h.DB, req.CreatedByEmail, "Creator not found")
	if err != nil {
		return err
	}

	ctx := c.Request().Context()

	var rec *models.FeedbackRecord
	if req.ID != "" {
		rec, err = h.Engine.Submit(ctx, req.ID, actor, req.content())
	} else {
		rec, err = h.Engine.Create(ctx, actor, req.EmployeeEmail, req.content(), models.StatusSubmitted)
	}
	if err != nil {
		return httpError(err)
	}

	h.invalidateListCache(ctx, rec.CreatedByEmail, rec.EmployeeEmail)

	if h.EmailClient != nil {
		if subject, err := models.GetUserByEmail(h.DB, rec.EmployeeEmail); err == nil {
			h.EmailClient.SendFeedbackSubmittedEmail(subject, rec)
		}
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": "feedback submitted successfully",
		"id":      rec.ID,
	})
}

// Draft saves feedback without submitting it: a new record at draft, or,
// when an id is present, a draft save on an existing record.
func (h *FeedbackHandler) Draft(c echo.Context) error {
	req := new(FeedbackUpsertRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	actor, err := lookupActingUser(h.DB, req.CreatedByEmail, "Creator not found")
	if err != nil {
		return err
	}

	ctx := c.Request().Context()

	var rec *models.FeedbackRecord
	if req.ID != "" {
		rec, err = h.Engine.SaveDraft(ctx, req.ID, actor, req.content())
	} else {
		rec, err = h.Engine.Create(ctx, actor, req.EmployeeEmail, req.content(), models.StatusDraft)
	}
	if err != nil {
		return httpError(err)
	}

	h.invalidateListCache(ctx, rec.CreatedByEmail, rec.EmployeeEmail)

	return c.JSON(http.StatusOK, map[string]string{
		"message": "draft saved",
		"id":      rec.ID,
	})
}

// GetAll lists every record the viewer is a party to, most recent activity
// first. Served through a short-lived Redis cache when one is configured.
func (h *FeedbackHandler) GetAll(c echo.Context) error {
	viewerEmail := c.QueryParam("email")
	if viewerEmail == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email query parameter is required")
	}

	viewer, err := lookupActingUser(h.DB, viewerEmail, "User not found")
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	cacheKey := "feedback:list:" + viewer.Email

	if h.Redis != nil {
		if cached, err := h.Redis.Get(ctx, cacheKey).Bytes(); err == nil {
			return c.JSONBlob(http.StatusOK, cached)
		}
	}

	records, err := h.Engine.List(ctx, viewer.Email)
	if err != nil {
		return httpError(err)
	}

	names, err := h.displayNames(records)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	summaries := make([]FeedbackSummary, 0, len(records))
	for i := range records {
		rec := records[i]
		feedback.MaskAnonymous(&rec, viewer)

		createdByName := names[rec.CreatedByEmail]
		if rec.CreatedByEmail == models.AnonymousCreator {
			createdByName = models.AnonymousCreator
		}

		summaries = append(summaries, FeedbackSummary{
			ID:             rec.ID,
			CreatedByEmail: rec.CreatedByEmail,
			CreatedByName:  createdByName,
			EmployeeEmail:  rec.EmployeeEmail,
			EmployeeName:   names[rec.EmployeeEmail],
			Preview:        preview(rec.Strengths),
			Sentiment:      rec.Sentiment,
			Status:         rec.Status,
			Tags:           rec.Tags,
			IsAnon:         rec.IsAnon,
			RequestedAt:    rec.RequestedAt,
			SubmittedAt:    rec.SubmittedAt,
			UpdatedAt:      rec.UpdatedAt,
			AcknowledgedAt: rec.AcknowledgedAt,
		})
	}

	payload, err := json.Marshal(summaries)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if h.Redis != nil {
		if err := h.Redis.Set(ctx, cacheKey, payload, listCacheTTL).Err(); err != nil {
			c.Logger().Warnf("Failed to cache feedback list for %s: %v", viewer.Email, err)
		}
	}

	return c.JSONBlob(http.StatusOK, payload)
}

// GetByID returns the full record for a viewer with view rights.
func (h *FeedbackHandler) GetByID(c echo.Context) error {
	viewerEmail := c.QueryParam("requestor_email")
	if viewerEmail == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "requestor_email query parameter is required")
	}

	viewer, err := lookupActingUser(h.DB, viewerEmail, "user not found")
	if err != nil {
		return err
	}

	rec, err := h.Engine.GetByID(c.Request().Context(), c.Param("id"), viewer)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, rec)
}

// Capabilities exposes the policy decision for one viewer and record so the
// client renders exactly what the server will allow.
func (h *FeedbackHandler) Capabilities(c echo.Context) error {
	viewerEmail := c.QueryParam("viewer_email")
	if viewerEmail == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "viewer_email query parameter is required")
	}

	viewer, err := lookupActingUser(h.DB, viewerEmail, "user not found")
	if err != nil {
		return err
	}

	var rec models.FeedbackRecord
	result := h.DB.Where("id = ?", c.Param("id")).First(&rec)
	if result.Error != nil {
		return httpError(&feedback.NotFoundError{Message: "feedback not found"})
	}

	return c.JSON(http.StatusOK, feedback.Compute(viewer, &rec))
}

// Acknowledge records the subject's confirmation of submitted feedback.
func (h *FeedbackHandler) Acknowledge(c echo.Context) error {
	req := new(AcknowledgeRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	actor, err := lookupActingUser(h.DB, req.EmployeeEmail, "Employee not found")
	if err != nil {
		return err
	}

	ctx := c.Request().Context()

	rec, err := h.Engine.Acknowledge(ctx, c.Param("id"), actor)
	if err != nil {
		return httpError(err)
	}

	h.invalidateListCache(ctx, rec.CreatedByEmail, rec.EmployeeEmail)

	return c.JSON(http.StatusOK, map[string]string{
		"message": "feedback acknowledged successfully",
	})
}

// Delete removes an unrequested draft.
func (h *FeedbackHandler) Delete(c echo.Context) error {
	actorEmail := c.QueryParam("requestor_email")
	if actorEmail == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "requestor_email query parameter is required")
	}

	actor, err := lookupActingUser(h.DB, actorEmail, "user not found")
	if err != nil {
		return err
	}

	ctx := c.Request().Context()

	if err := h.Engine.Delete(ctx, c.Param("id"), actor); err != nil {
		return httpError(err)
	}

	h.invalidateListCache(ctx, actor.Email)

	return c.JSON(http.StatusOK, map[string]string{
		"message": "feedback deleted",
	})
}

// RequestFeedback opens a record at requested status on behalf of an
// employee asking their manager for feedback.
func (h *FeedbackHandler) RequestFeedback(c echo.Context) error {
	req := new(RequestFeedbackRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	requestor, err := lookupActingUser(h.DB, req.RequestorEmail, "Requestor not found")
	if err != nil {
		return err
	}

	ctx := c.Request().Context()

	rec, err := h.Engine.Request(ctx, requestor, req.GiverEmail, req.Tags)
	if err != nil {
		return httpError(err)
	}

	h.invalidateListCache(ctx, rec.CreatedByEmail, rec.EmployeeEmail)

	if h.EmailClient != nil {
		if giver, err := models.GetUserByEmail(h.DB, rec.CreatedByEmail); err == nil {
			h.EmailClient.SendFeedbackRequestedEmail(giver, requestor.Name, req.Tags)
		}
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": "feedback requested",
		"id":      rec.ID,
	})
}

// displayNames resolves every email appearing in the records to a name in
// one query.
func (h *FeedbackHandler) displayNames(records []models.FeedbackRecord) (map[string]string, error) {
	emails := make([]string, 0, len(records)*2)
	seen := make(map[string]bool)
	for _, rec := range records {
		for _, e := range []string{rec.CreatedByEmail, rec.EmployeeEmail} {
			if !seen[e] {
				seen[e] = true
				emails = append(emails, e)
			}
		}
	}

	names := make(map[string]string, len(emails))
	if len(emails) == 0 {
		return names, nil
	}

	var users []models.User
	if err := h.DB.Select("name, email").Where("email IN ?", emails).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		names[u.Email] = u.Name
	}
	return names, nil
}

// invalidateListCache drops the cached lists of everyone affected by a
// mutation so the next poll sees it immediately.
func (h *FeedbackHandler) invalidateListCache(ctx context.Context, emails ...string) {
	if h.Redis == nil {
		return
	}

	keys := make([]string, 0, len(emails))
	for _, e := range emails {
		keys = append(keys, "feedback:list:"+e)
	}
	// Best effort; an expired entry ages out within listCacheTTL anyway.
	h.Redis.Del(ctx, keys...)
}
