package feedback

import (
	"feedback-backend/internal/models"
)

// Capabilities is the set of actions a viewer may take on a record. It is
// computed in exactly one place so the server-side checks and whatever the
// client renders cannot drift apart.
type Capabilities struct {
	View        bool `json:"view"`
	EditContent bool `json:"edit_content"`
	Acknowledge bool `json:"acknowledge"`
	Delete      bool `json:"delete"`
	// ListAsInbox marks records that belong in the viewer's "received" list,
	// ListAsOutbox those in their "given" list.
	ListAsInbox  bool `json:"list_as_inbox"`
	ListAsOutbox bool `json:"list_as_outbox"`
}

// Compute derives the capability set for an actor against a record. Pure
// function of its inputs; role matters only for creation rules, so a manager
// named as the subject of a record can still view and acknowledge it.
func Compute(actor *models.User, rec *models.FeedbackRecord) Capabilities {
	isCreator := actor.Email == rec.CreatedByEmail
	isSubject := actor.Email == rec.EmployeeEmail

	editable := rec.Status == models.StatusRequested || rec.Status == models.StatusDraft

	return Capabilities{
		View:         isCreator || isSubject,
		EditContent:  isCreator && editable,
		Acknowledge:  isSubject && rec.Status == models.StatusSubmitted,
		Delete:       isCreator && rec.Status == models.StatusDraft && rec.RequestedAt == nil,
		ListAsInbox:  isSubject && !isCreator,
		ListAsOutbox: isCreator,
	}
}

// CanCreateDirect reports whether a user may author feedback directly.
// Employees cannot; they go through a request instead.
func CanCreateDirect(actor *models.User) bool {
	return actor.Role == models.RoleManager
}

// CanReceiveRequest reports whether a user may be asked for feedback.
// Requests are always directed at a manager.
func CanReceiveRequest(giver *models.User) bool {
	return giver.Role == models.RoleManager
}
