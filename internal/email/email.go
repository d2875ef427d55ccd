package email

import (
	"fmt"
	"strings"

	"feedback-backend/internal/models"

	"github.com/labstack/echo/v4"
	resend "github.com/resend/resend-go/v2"
)

// EmailClient is an interface for sending emails
type EmailClient interface {
	SendAsync(toEmail, subject, htmlBody string)
	SendFeedbackSubmittedEmail(subject *models.User, rec *models.FeedbackRecord)
	SendFeedbackRequestedEmail(giver *models.User, requestorName string, tags []string)
}

// ResendEmailClient implements EmailClient using the Resend service
type ResendEmailClient struct {
	client        *resend.Client
	defaultSender string
	logger        echo.Logger
}

// NewResendEmailClient creates a new ResendEmailClient
func NewResendEmailClient(client *resend.Client, defaultSender string, logger echo.Logger) *ResendEmailClient {
	return &ResendEmailClient{
		client:        client,
		defaultSender: defaultSender,
		logger:        logger,
	}
}

// SendAsync sends an email asynchronously
func (c *ResendEmailClient) SendAsync(toEmail, subject, htmlBody string) {
	if c == nil || c.client == nil {
		fmt.Println("Resend client not initialized, skipping email.")
		return
	}

	if c.defaultSender == "" {
		c.logger.Errorf("Resend default sender not configured, skipping email.")
		return
	}

	go func() {
		params := &resend.SendEmailRequest{
			From:    c.defaultSender,
			To:      []string{toEmail},
			Subject: subject,
			Html:    htmlBody,
		}

		_, err := c.client.Emails.Send(params)
		if err != nil {
			c.logger.Errorf("Failed to send email to %s (Subject: %s): %v", toEmail, subject, err)
		} else {
			c.logger.Infof("Email sent successfully to %s (Subject: %s)", toEmail, subject)
		}
	}()
}

// SendFeedbackSubmittedEmail tells the subject of a record that new feedback
// is waiting for them. Anonymous records never name the author.
func (c *ResendEmailClient) SendFeedbackSubmittedEmail(subject *models.User, rec *models.FeedbackRecord) {
	if subject == nil || rec == nil {
		c.logger.Error("Cannot send feedback notification without a user and a record")
		return
	}

	author := rec.CreatedByEmail
	if rec.IsAnon {
		author = "A colleague"
	}

	htmlBody := fmt.Sprintf(
		"<p>Hi %s,</p><p>%s has shared feedback with you. Log in to read and acknowledge it.</p>",
		subject.Name, author)

	c.SendAsync(subject.Email, "You have new feedback", htmlBody)
}

// SendFeedbackRequestedEmail tells a manager that one of their reports asked
// for feedback.
func (c *ResendEmailClient) SendFeedbackRequestedEmail(giver *models.User, requestorName string, tags []string) {
	if giver == nil {
		c.logger.Error("Cannot send feedback request notification to nil user")
		return
	}

	topics := ""
	if len(tags) > 0 {
		topics = fmt.Sprintf(" They would like to hear about: %s.", strings.Join(tags, ", "))
	}

	htmlBody := fmt.Sprintf(
		"<p>Hi %s,</p><p>%s has requested feedback from you.%s</p>",
		giver.Name, requestorName, topics)

	subject := fmt.Sprintf("%s requested your feedback", requestorName)

	c.SendAsync(giver.Email, subject, htmlBody)
}
