package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"feedback-backend/internal/common"
	"feedback-backend/internal/config"
	"feedback-backend/internal/models"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type TeamHandler struct {
	common.ServerState
}

func NewTeamHandler(db *gorm.DB, cfg *config.Config) *TeamHandler {
	return &TeamHandler{
		ServerState: common.ServerState{
			DB:     db,
			Config: cfg,
		},
	}
}

type TeamCreateRequest struct {
	ManagerEmail string   `json:"manager_email" validate:"required,email"`
	MemberEmails []string `json:"member_emails" validate:"required,dive,email"`
}

// Create sets up a team: one manager, a list of employee members. Admin
// only.
func (h *TeamHandler) Create(c echo.Context) error {
	adminEmail := c.QueryParam("admin_email")
	if adminEmail == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "admin_email query parameter is required")
	}

	var admin models.User
	result := h.DB.Where("email = ?", adminEmail).First(&admin)
	if result.Error != nil || admin.Role != models.RoleAdmin {
		return echo.NewHTTPError(http.StatusForbidden, "Only admins can create teams")
	}

	req := new(TeamCreateRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var manager models.User
	result = h.DB.Where("email = ?", req.ManagerEmail).First(&manager)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) || manager.Role != models.RoleManager {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid manager email")
	}

	for _, memberEmail := range req.MemberEmails {
		var member models.User
		result = h.DB.Where("email = ?", memberEmail).First(&member)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) || member.Role != models.RoleEmployee {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid member: %s", memberEmail))
		}
	}

	team := models.Team{
		ManagerEmail: req.ManagerEmail,
		MemberEmails: req.MemberEmails,
	}
	if err := h.DB.Create(&team).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create team")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": "Team created",
		"id":      team.ID,
	})
}
