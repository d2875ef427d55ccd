package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Status of a feedback record. Transitions only move forward:
// requested -> draft -> submitted -> acknowledged.
type Status string

const (
	StatusRequested    Status = "requested"
	StatusDraft        Status = "draft"
	StatusSubmitted    Status = "submitted"
	StatusAcknowledged Status = "acknowledged"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	}
	return false
}

// FeedbackRecord is one feedback item exchanged between a creator and the
// employee it is about.
type FeedbackRecord struct {
	ID             string    `json:"id" gorm:"unique;not null"` // Standard field for the primary key
	CreatedByEmail string    `json:"created_by_email" gorm:"not null;index"`
	CreatedByRole  Role      `json:"created_by_role" gorm:"type:varchar(20)"`
	EmployeeEmail  string    `json:"employee_email" gorm:"not null;index"`
	Sentiment      Sentiment `json:"sentiment" gorm:"type:varchar(20)"`
	Strengths      string    `json:"strengths" gorm:"type:text"`
	AreasToImprove string    `json:"areas_to_improve" gorm:"type:text"`
	Tags           []string  `json:"tags" gorm:"serializer:json"`
	IsAnon         bool      `json:"is_anon" gorm:"default:false"`
	Status         Status    `json:"status" gorm:"type:varchar(20);not null;index"`

	RequestedAt *time.Time `json:"requested_at"`
	// Submission timestamp, set once on the first transition into submitted.
	// Serialized as created_at, which is what the web app reads.
	SubmittedAt    *time.Time `json:"created_at" gorm:"column:submitted_at"`
	UpdatedAt      time.Time  `json:"updated_at"` // Automatically managed by GORM for update time
	AcknowledgedAt *time.Time `json:"acknowledged_at"`
}

func (f *FeedbackRecord) BeforeCreate(tx *gorm.DB) (err error) {
	// Using uuid v7 to be indexable with B-tree
	uuidV7, err := uuid.NewV7()
	if err != nil {
		return err
	}
	f.ID = uuidV7.String()

	return
}

// AnonymousCreator replaces the creator identity when an anonymous record is
// shown to its subject.
const AnonymousCreator = "Anonymous"
