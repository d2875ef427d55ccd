package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"feedback-backend/internal/common"
	"feedback-backend/internal/config"
	"feedback-backend/internal/models"
	"feedback-backend/internal/notifications"

	"github.com/labstack/echo/v4"
	"github.com/lindell/go-burner-email-providers/burner"
	"gorm.io/gorm"
)

type UserHandler struct {
	common.ServerState
}

func NewUserHandler(db *gorm.DB, cfg *config.Config, jwt common.JWTIssuer) *UserHandler {
	return &UserHandler{
		ServerState: common.ServerState{
			DB:        db,
			Config:    cfg,
			JwtIssuer: jwt,
		},
	}
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Register creates a user account.
func (h *UserHandler) Register(c echo.Context) error {
	c.Logger().Info("Received registration request")

	u := new(models.User)
	if err := c.Bind(u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if burner.IsBurnerEmail(u.Email) {
		return echo.NewHTTPError(http.StatusBadRequest, "Temporary email addresses are not allowed")
	}

	u.Name = titleCase(u.Name)

	result := h.DB.Create(u)
	if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return echo.NewHTTPError(http.StatusBadRequest, "User already exists")
	}
	if result.Error != nil {
		c.Logger().Errorf("Failed to create user: %v", result.Error)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create user")
	}

	_ = notifications.SendTelegramNotification(fmt.Sprintf("New sign-up: %s", u.ID), h.Config)

	return c.JSON(http.StatusCreated, u.Public())
}

// BulkRegister creates several accounts in one call; used to seed a team.
func (h *UserHandler) BulkRegister(c echo.Context) error {
	var reqs []models.User
	if err := c.Bind(&reqs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	created := make([]models.PublicUser, 0, len(reqs))
	for i := range reqs {
		u := &reqs[i]
		if err := c.Validate(u); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if burner.IsBurnerEmail(u.Email) {
			return echo.NewHTTPError(http.StatusBadRequest, "Temporary email addresses are not allowed")
		}

		u.Name = titleCase(u.Name)

		result := h.DB.Create(u)
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return echo.NewHTTPError(http.StatusBadRequest, "User already exists")
		}
		if result.Error != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create user")
		}

		created = append(created, u.Public())
	}

	return c.JSON(http.StatusCreated, created)
}

// Login checks credentials and hands the web app a token to store.
func (h *UserHandler) Login(c echo.Context) error {
	c.Logger().Info("Received login request")

	req := new(LoginRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	u := &models.User{}
	result := h.DB.Where("email = ?", req.Email).First(u)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusBadRequest, "User does not exist, please register first")
	}

	if !u.CheckPassword(req.Password) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	}

	token, err := h.JwtIssuer.GenerateToken(u.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}

	_ = notifications.SendTelegramNotification(fmt.Sprintf("New sign-in: %s", u.ID), h.Config)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"name":  u.Name,
		"email": u.Email,
		"role":  u.Role,
		"token": token,
	})
}

// GetAll returns every registered user without credential fields.
func (h *UserHandler) GetAll(c echo.Context) error {
	var users []models.User
	if err := h.DB.Order("name ASC").Find(&users).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	public := make([]models.PublicUser, 0, len(users))
	for i := range users {
		public = append(public, users[i].Public())
	}

	return c.JSON(http.StatusOK, public)
}

// AuthUser returns the user behind the bearer token.
func (h *UserHandler) AuthUser(c echo.Context) error {
	user, isAuthenticated := getAuthenticatedUserFromJWT(c, h.JwtIssuer, h.DB)
	if !isAuthenticated {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized request")
	}

	return c.JSON(http.StatusOK, user.Public())
}
