// Package directory supplies the user roster that the feedback lifecycle and
// policy consult. The core never owns or caches this data; every decision
// that needs a role goes through this interface.
package directory

import (
	"context"
	"errors"

	"feedback-backend/internal/models"

	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

type Directory interface {
	// LookupUser returns the user with the given email or ErrUserNotFound.
	LookupUser(ctx context.Context, email string) (*models.User, error)
	// ListUsers returns the roster visible to the requester, excluding the
	// requester, managers first.
	ListUsers(ctx context.Context, requesterEmail string) ([]models.User, error)
	// ListTeamMembers returns the requester's team, excluding the requester,
	// managers first. Returns models.ErrNoTeam when the requester is not on
	// a team.
	ListTeamMembers(ctx context.Context, requesterEmail string) ([]models.User, error)
}

// managersFirst keeps managers at the top of every roster the UI shows.
const managersFirst = "CASE role WHEN 'manager' THEN 0 WHEN 'employee' THEN 1 ELSE 2 END, name ASC"

type GormDirectory struct {
	db *gorm.DB
}

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

func (d *GormDirectory) LookupUser(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	result := d.db.WithContext(ctx).Where("email = ?", email).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}

func (d *GormDirectory) ListUsers(ctx context.Context, requesterEmail string) ([]models.User, error) {
	var users []models.User
	err := d.db.WithContext(ctx).
		Where("email <> ?", requesterEmail).
		Order(managersFirst).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (d *GormDirectory) ListTeamMembers(ctx context.Context, requesterEmail string) ([]models.User, error) {
	team, err := models.GetTeamForEmail(d.db.WithContext(ctx), requesterEmail)
	if err != nil {
		return nil, err
	}

	emails := make([]string, 0, len(team.MemberEmails)+1)
	for _, e := range team.Emails() {
		if e != requesterEmail {
			emails = append(emails, e)
		}
	}

	var users []models.User
	err = d.db.WithContext(ctx).
		Where("email IN ?", emails).
		Order(managersFirst).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}
