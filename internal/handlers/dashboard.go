package handlers

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"feedback-backend/internal/common"
	"feedback-backend/internal/config"
	"feedback-backend/internal/directory"
	"feedback-backend/internal/models"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type DashboardHandler struct {
	common.ServerState
	Dir directory.Directory
}

func NewDashboardHandler(db *gorm.DB, cfg *config.Config) *DashboardHandler {
	return &DashboardHandler{
		ServerState: common.ServerState{
			DB:     db,
			Config: cfg,
		},
		Dir: directory.NewGormDirectory(db),
	}
}

// FeedbackCount returns how much feedback the caller has given (managers) or
// received (employees), with a label the dashboard card shows as-is.
func (h *DashboardHandler) FeedbackCount(c echo.Context) error {
	user, err := lookupActingUser(h.DB, c.QueryParam("email"), "User not found")
	if err != nil {
		return err
	}

	var (
		count int64
		label string
	)
	switch user.Role {
	case models.RoleManager:
		h.DB.Model(&models.FeedbackRecord{}).Where("created_by_email = ?", user.Email).Count(&count)
		label = "Feedbacks Given"
	case models.RoleEmployee:
		h.DB.Model(&models.FeedbackRecord{}).Where("employee_email = ?", user.Email).Count(&count)
		label = "Feedbacks Received"
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid role")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"count": count,
		"label": label,
	})
}

// SentimentTrendsResponse holds per-month sentiment counts, one entry per
// slice index, months in ascending order.
type SentimentTrendsResponse struct {
	Labels   []string `json:"labels"`
	Positive []int    `json:"positive"`
	Neutral  []int    `json:"neutral"`
	Negative []int    `json:"negative"`
}

// SentimentTrends groups a manager's submitted feedback by month over
// roughly the last six months.
func (h *DashboardHandler) SentimentTrends(c echo.Context) error {
	user, err := lookupActingUser(h.DB, c.QueryParam("email"), "User not found")
	if err != nil {
		return err
	}
	if user.Role != models.RoleManager {
		return echo.NewHTTPError(http.StatusForbidden, "Only managers can access sentiment trends")
	}

	var records []models.FeedbackRecord
	if err := h.DB.Where("created_by_email = ? AND submitted_at IS NOT NULL", user.Email).Find(&records).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	now := time.Now().UTC()
	startDate := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -150)

	type monthCounts struct {
		positive, neutral, negative int
	}
	trends := make(map[string]*monthCounts)

	for _, rec := range records {
		if rec.SubmittedAt.Before(startDate) {
			continue
		}

		month := rec.SubmittedAt.Format("2006-01")
		counts := trends[month]
		if counts == nil {
			counts = &monthCounts{}
			trends[month] = counts
		}

		switch rec.Sentiment {
		case models.SentimentPositive:
			counts.positive++
		case models.SentimentNegative:
			counts.negative++
		default:
			counts.neutral++
		}
	}

	labels := make([]string, 0, len(trends))
	for month := range trends {
		labels = append(labels, month)
	}
	sort.Strings(labels)

	resp := SentimentTrendsResponse{
		Labels:   labels,
		Positive: make([]int, len(labels)),
		Neutral:  make([]int, len(labels)),
		Negative: make([]int, len(labels)),
	}
	for i, month := range labels {
		resp.Positive[i] = trends[month].positive
		resp.Neutral[i] = trends[month].neutral
		resp.Negative[i] = trends[month].negative
	}

	return c.JSON(http.StatusOK, resp)
}

type TeamMemberDTO struct {
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
}

// TeamMembers returns the caller's team roster, managers first, without the
// caller themselves.
func (h *DashboardHandler) TeamMembers(c echo.Context) error {
	user, err := lookupActingUser(h.DB, c.QueryParam("user_email"), "User not found")
	if err != nil {
		return err
	}

	members, err := h.Dir.ListTeamMembers(c.Request().Context(), user.Email)
	if err != nil {
		if errors.Is(err, models.ErrNoTeam) {
			return echo.NewHTTPError(http.StatusNotFound, "User is not part of any team")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	dtos := make([]TeamMemberDTO, 0, len(members))
	for _, m := range members {
		dtos = append(dtos, TeamMemberDTO{Name: m.Name, Email: m.Email, Role: m.Role})
	}

	return c.JSON(http.StatusOK, dtos)
}

type FeedbackTimelineDTO struct {
	ID        string           `json:"id"`
	Creator   string           `json:"creator"`
	UpdatedAt time.Time        `json:"updated_at"`
	Sentiment models.Sentiment `json:"sentiment"`
	Preview   string           `json:"preview"`
}

// FeedbackTimeline lists an employee's submitted and acknowledged feedback,
// most recent submission first, with anonymous creators hidden.
func (h *DashboardHandler) FeedbackTimeline(c echo.Context) error {
	user, err := lookupActingUser(h.DB, c.QueryParam("email"), "User not found")
	if err != nil {
		return err
	}
	if user.Role == models.RoleManager {
		return echo.NewHTTPError(http.StatusBadRequest, "Managers can't access the feedback timeline")
	}

	var records []models.FeedbackRecord
	err = h.DB.
		Where("employee_email = ? AND status IN ?", user.Email, []models.Status{models.StatusSubmitted, models.StatusAcknowledged}).
		Order("submitted_at DESC").
		Find(&records).Error
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	timeline := make([]FeedbackTimelineDTO, 0, len(records))
	for _, rec := range records {
		creatorName := models.AnonymousCreator
		if !rec.IsAnon {
			creatorName = "Unknown"
			if creator, err := models.GetUserByEmail(h.DB, rec.CreatedByEmail); err == nil {
				creatorName = creator.Name
			}
		}

		timeline = append(timeline, FeedbackTimelineDTO{
			ID:        rec.ID,
			Creator:   creatorName,
			UpdatedAt: rec.UpdatedAt,
			Sentiment: rec.Sentiment,
			Preview:   preview(rec.Strengths),
		})
	}

	return c.JSON(http.StatusOK, timeline)
}

type FeedbackAnalyticsDTO struct {
	ID           string           `json:"id"`
	EmployeeName string           `json:"employee_name"`
	Sentiment    models.Sentiment `json:"sentiment"`
	Status       models.Status    `json:"status"`
	Tags         []string         `json:"tags"`
	SubmittedAt  *time.Time       `json:"created_at"`
}

// AllAnalytics gives a manager a flat view of every record they created,
// with employee names resolved.
func (h *DashboardHandler) AllAnalytics(c echo.Context) error {
	user, err := lookupActingUser(h.DB, c.QueryParam("user_email"), "User not found")
	if err != nil {
		return err
	}
	if user.Role != models.RoleManager {
		return echo.NewHTTPError(http.StatusForbidden, "User is not a manager")
	}

	var records []models.FeedbackRecord
	if err := h.DB.Where("created_by_email = ?", user.Email).Find(&records).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	names := make(map[string]string)
	dtos := make([]FeedbackAnalyticsDTO, 0, len(records))
	for _, rec := range records {
		name, ok := names[rec.EmployeeEmail]
		if !ok {
			name = "Unknown"
			if employee, err := models.GetUserByEmail(h.DB, rec.EmployeeEmail); err == nil {
				name = employee.Name
			}
			names[rec.EmployeeEmail] = name
		}

		dtos = append(dtos, FeedbackAnalyticsDTO{
			ID:           rec.ID,
			EmployeeName: name,
			Sentiment:    rec.Sentiment,
			Status:       rec.Status,
			Tags:         rec.Tags,
			SubmittedAt:  rec.SubmittedAt,
		})
	}

	return c.JSON(http.StatusOK, dtos)
}
