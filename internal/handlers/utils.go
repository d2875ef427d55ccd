package handlers

import (
	"errors"
	"net/http"
	"strings"
	"unicode"

	"feedback-backend/internal/common"
	"feedback-backend/internal/feedback"
	"feedback-backend/internal/models"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// httpError maps the lifecycle engine's typed errors onto HTTP statuses.
// Anything untyped is a server fault.
func httpError(err error) error {
	var (
		validationErr *feedback.ValidationError
		forbiddenErr  *feedback.ForbiddenError
		notFoundErr   *feedback.NotFoundError
		conflictErr   *feedback.ConflictError
	)

	switch {
	case errors.As(err, &validationErr):
		return echo.NewHTTPError(http.StatusBadRequest, validationErr.Message)
	case errors.As(err, &forbiddenErr):
		return echo.NewHTTPError(http.StatusForbidden, forbiddenErr.Message)
	case errors.As(err, &notFoundErr):
		return echo.NewHTTPError(http.StatusNotFound, notFoundErr.Message)
	case errors.As(err, &conflictErr):
		return echo.NewHTTPError(http.StatusConflict, conflictErr.Message)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// lookupActingUser resolves an email carried in the request to a user row.
func lookupActingUser(db *gorm.DB, email, missingMsg string) (*models.User, error) {
	var user models.User
	result := db.Where("email = ?", email).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, missingMsg)
		}
		return nil, echo.NewHTTPError(http.StatusInternalServerError, result.Error.Error())
	}
	return &user, nil
}

// getAuthenticatedUserFromJWT returns the user behind the bearer token on a
// protected route.
func getAuthenticatedUserFromJWT(c echo.Context, jwtIssuer common.JWTIssuer, db *gorm.DB) (*models.User, bool) {
	email, err := jwtIssuer.GetUserEmail(c)
	if err != nil {
		return nil, false
	}

	user, err := models.GetUserByEmail(db, email)
	if err != nil {
		return nil, false
	}

	return user, true
}

// titleCase uppercases the first letter of each word, the way display names
// are stored at registration.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// preview returns the first 60 characters of the strengths text for list
// views.
func preview(text string) string {
	const limit = 60
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit]) + "..."
}
