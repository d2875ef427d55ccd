package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Team groups one manager with the employees reporting to them.
type Team struct {
	ID           string    `json:"id" gorm:"unique;not null"`
	ManagerEmail string    `gorm:"not null;index" json:"manager_email" validate:"required,email"`
	MemberEmails []string  `gorm:"serializer:json" json:"member_emails" validate:"required,dive,email"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (t *Team) BeforeCreate(tx *gorm.DB) (err error) {
	uuidV7, err := uuid.NewV7()
	if err != nil {
		return err
	}
	t.ID = uuidV7.String()

	return
}

var ErrNoTeam = errors.New("user is not part of any team")

// GetTeamForEmail finds the team an email belongs to, either as the manager
// or as a member. The member list is stored as a JSON array, so membership is
// matched on the quoted email.
func GetTeamForEmail(db *gorm.DB, email string) (*Team, error) {
	var team Team
	result := db.Where("manager_email = ? OR member_emails LIKE ?", email, `%"`+email+`"%`).First(&team)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNoTeam
		}
		return nil, result.Error
	}
	return &team, nil
}

// Emails returns every address on the team, manager included, without
// duplicates.
func (t *Team) Emails() []string {
	seen := make(map[string]bool, len(t.MemberEmails)+1)
	emails := make([]string, 0, len(t.MemberEmails)+1)
	for _, e := range append([]string{t.ManagerEmail}, t.MemberEmails...) {
		if seen[e] {
			continue
		}
		seen[e] = true
		emails = append(emails, e)
	}
	return emails
}
