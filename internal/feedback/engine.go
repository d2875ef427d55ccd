package feedback

import (
	"context"
	"errors"
	"time"

	"feedback-backend/internal/directory"
	"feedback-backend/internal/models"

	"gorm.io/gorm"
)

// Content carries the author-editable fields of a record.
type Content struct {
	Strengths      string
	AreasToImprove string
	Sentiment      models.Sentiment
	Tags           []string
	IsAnon         bool
}

func (c Content) complete() bool {
	return c.Strengths != "" && c.AreasToImprove != "" && c.Sentiment != ""
}

// Engine applies feedback lifecycle transitions. Every transition is a
// conditional update on (id, status) so concurrent mutations of the same
// record cannot both succeed; the loser gets a ConflictError.
type Engine struct {
	db  *gorm.DB
	dir directory.Directory
}

func NewEngine(db *gorm.DB, dir directory.Directory) *Engine {
	return &Engine{db: db, dir: dir}
}

// Create authors a new record directly, entering at draft or submitted.
// Only managers create feedback directly; employees go through Request.
func (e *Engine) Create(ctx context.Context, creator *models.User, subjectEmail string, content Content, target models.Status) (*models.FeedbackRecord, error) {
	if target != models.StatusDraft && target != models.StatusSubmitted {
		return nil, validationf("status must be draft or submitted")
	}

	subject, err := e.dir.LookupUser(ctx, subjectEmail)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return nil, validationf("employee not found")
		}
		return nil, err
	}

	if !CanCreateDirect(creator) {
		return nil, forbiddenf("only managers can create feedback directly")
	}
	if creator.Email == subject.Email {
		return nil, validationf("cannot send feedback to yourself")
	}
	if creator.Role == models.RoleManager && content.IsAnon {
		return nil, validationf("managers can't send anonymous feedback")
	}
	if content.Sentiment != "" && !content.Sentiment.Valid() {
		return nil, validationf("sentiment must be positive, neutral or negative")
	}
	if target == models.StatusSubmitted && !content.complete() {
		return nil, validationf("strengths, areas to improve and sentiment are required to submit")
	}

	rec := &models.FeedbackRecord{
		CreatedByEmail: creator.Email,
		CreatedByRole:  creator.Role,
		EmployeeEmail:  subject.Email,
		Strengths:      content.Strengths,
		AreasToImprove: content.AreasToImprove,
		Sentiment:      content.Sentiment,
		Tags:           content.Tags,
		IsAnon:         content.IsAnon,
		Status:         target,
	}
	if target == models.StatusSubmitted {
		now := time.Now().UTC()
		rec.SubmittedAt = &now
	}

	if err := e.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

// Request opens a record at requested status: the requestor becomes the
// subject and the giver the creator who will author the content later.
func (e *Engine) Request(ctx context.Context, requestor *models.User, giverEmail string, tags []string) (*models.FeedbackRecord, error) {
	giver, err := e.dir.LookupUser(ctx, giverEmail)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return nil, validationf("giver not found")
		}
		return nil, err
	}

	if !CanReceiveRequest(giver) {
		return nil, validationf("feedback can only be requested from a manager")
	}
	if requestor.Email == giver.Email {
		return nil, validationf("cannot request feedback from yourself")
	}

	now := time.Now().UTC()
	rec := &models.FeedbackRecord{
		CreatedByEmail: giver.Email,
		CreatedByRole:  giver.Role,
		EmployeeEmail:  requestor.Email,
		Tags:           tags,
		Status:         models.StatusRequested,
		RequestedAt:    &now,
	}

	if err := e.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

// SaveDraft updates the content fields and moves the record to draft.
// Allowed from requested (the creator begins responding) and from draft
// itself; a submitted record can no longer be edited.
func (e *Engine) SaveDraft(ctx context.Context, recordID string, actor *models.User, content Content) (*models.FeedbackRecord, error) {
	rec, err := e.load(ctx, recordID)
	if err != nil {
		return nil, err
	}

	if !Compute(actor, rec).EditContent {
		if actor.Email != rec.CreatedByEmail {
			return nil, forbiddenf("only the creator can edit feedback")
		}
		return nil, conflictf("feedback can no longer be edited")
	}
	if content.Sentiment != "" && !content.Sentiment.Valid() {
		return nil, validationf("sentiment must be positive, neutral or negative")
	}
	if actor.Role == models.RoleManager && content.IsAnon {
		return nil, validationf("managers can't send anonymous feedback")
	}

	update := models.FeedbackRecord{
		Status:         models.StatusDraft,
		Strengths:      content.Strengths,
		AreasToImprove: content.AreasToImprove,
		Sentiment:      content.Sentiment,
		Tags:           content.Tags,
		IsAnon:         content.IsAnon,
	}
	if err := e.transition(ctx, rec, update, "status", "strengths", "areas_to_improve", "sentiment", "tags", "is_anon"); err != nil {
		return nil, err
	}
	return e.load(ctx, recordID)
}

// Submit validates the required fields and moves the record to submitted,
// stamping the submission time exactly once.
func (e *Engine) Submit(ctx context.Context, recordID string, actor *models.User, content Content) (*models.FeedbackRecord, error) {
	rec, err := e.load(ctx, recordID)
	if err != nil {
		return nil, err
	}

	if actor.Email != rec.CreatedByEmail {
		return nil, forbiddenf("only the creator can submit feedback")
	}
	if rec.Status != models.StatusRequested && rec.Status != models.StatusDraft {
		return nil, conflictf("feedback has already been submitted")
	}
	if !content.Sentiment.Valid() {
		return nil, validationf("sentiment must be positive, neutral or negative")
	}
	if !content.complete() {
		return nil, validationf("strengths, areas to improve and sentiment are required to submit")
	}
	if actor.Role == models.RoleManager && content.IsAnon {
		return nil, validationf("managers can't send anonymous feedback")
	}

	now := time.Now().UTC()
	update := models.FeedbackRecord{
		Status:         models.StatusSubmitted,
		Strengths:      content.Strengths,
		AreasToImprove: content.AreasToImprove,
		Sentiment:      content.Sentiment,
		Tags:           content.Tags,
		IsAnon:         content.IsAnon,
		SubmittedAt:    &now,
	}
	if err := e.transition(ctx, rec, update, "status", "strengths", "areas_to_improve", "sentiment", "tags", "is_anon", "submitted_at"); err != nil {
		return nil, err
	}
	return e.load(ctx, recordID)
}

// Acknowledge is the subject's confirmation of having read submitted
// feedback. Terminal; a second acknowledge loses the status race and fails.
func (e *Engine) Acknowledge(ctx context.Context, recordID string, actor *models.User) (*models.FeedbackRecord, error) {
	rec, err := e.load(ctx, recordID)
	if err != nil {
		return nil, err
	}

	if actor.Email != rec.EmployeeEmail {
		return nil, forbiddenf("only the employee the feedback is about can acknowledge it")
	}
	if rec.Status != models.StatusSubmitted {
		return nil, conflictf("only submitted feedback can be acknowledged")
	}

	now := time.Now().UTC()
	update := models.FeedbackRecord{
		Status:         models.StatusAcknowledged,
		AcknowledgedAt: &now,
	}
	if err := e.transition(ctx, rec, update, "status", "acknowledged_at"); err != nil {
		return nil, err
	}
	return e.load(ctx, recordID)
}

// Delete removes an unrequested draft. A draft that originated from a
// request must be completed or left pending, never deleted.
func (e *Engine) Delete(ctx context.Context, recordID string, actor *models.User) error {
	rec, err := e.load(ctx, recordID)
	if err != nil {
		return err
	}

	if actor.Email != rec.CreatedByEmail {
		return forbiddenf("only the creator can delete feedback")
	}
	if rec.RequestedAt != nil {
		return conflictf("requested feedback cannot be deleted")
	}
	if rec.Status != models.StatusDraft {
		return conflictf("only drafts can be deleted")
	}

	result := e.db.WithContext(ctx).
		Where("id = ? AND status = ?", rec.ID, models.StatusDraft).
		Delete(&models.FeedbackRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return conflictf("feedback changed while deleting, try again")
	}
	return nil
}

// List returns every record the viewer is a party to, most recent activity
// first. Equal timestamps are tie-broken by id so polling sees a stable
// order.
func (e *Engine) List(ctx context.Context, viewerEmail string) ([]models.FeedbackRecord, error) {
	var records []models.FeedbackRecord
	err := e.db.WithContext(ctx).
		Where("created_by_email = ? OR employee_email = ?", viewerEmail, viewerEmail).
		Order("updated_at DESC, id DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// GetByID returns the record if the viewer is a party to it. Anonymous
// records shown to their subject have the creator identity masked.
func (e *Engine) GetByID(ctx context.Context, recordID string, viewer *models.User) (*models.FeedbackRecord, error) {
	rec, err := e.load(ctx, recordID)
	if err != nil {
		return nil, err
	}

	caps := Compute(viewer, rec)
	if !caps.View {
		return nil, forbiddenf("access denied")
	}

	masked := *rec
	MaskAnonymous(&masked, viewer)
	return &masked, nil
}

// MaskAnonymous hides the creator of an anonymous record from its subject.
// The creator always sees their own record unmasked.
func MaskAnonymous(rec *models.FeedbackRecord, viewer *models.User) {
	if rec.IsAnon && viewer.Email == rec.EmployeeEmail && viewer.Email != rec.CreatedByEmail {
		rec.CreatedByEmail = models.AnonymousCreator
		rec.CreatedByRole = ""
	}
}

func (e *Engine) load(ctx context.Context, recordID string) (*models.FeedbackRecord, error) {
	var rec models.FeedbackRecord
	result := e.db.WithContext(ctx).Where("id = ?", recordID).First(&rec)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, notFoundf("feedback not found")
		}
		return nil, result.Error
	}
	return &rec, nil
}

// transition applies a compare-and-swap update: it only lands if the row
// still holds the status the caller loaded. Zero rows affected means a
// concurrent transition won.
func (e *Engine) transition(ctx context.Context, rec *models.FeedbackRecord, update models.FeedbackRecord, fields ...string) error {
	result := e.db.WithContext(ctx).
		Model(&models.FeedbackRecord{}).
		Where("id = ? AND status = ?", rec.ID, rec.Status).
		Select(fields).
		Updates(update)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return conflictf("feedback changed concurrently, reload and retry")
	}
	return nil
}
