package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/noah-isme/curriculum-gate-api/internal/models"
	"github.com/noah-isme/curriculum-gate-api/pkg/jobs"
)

// Notifier delivers workflow and release events. Delivery is best effort; callers
// never roll back a transition because a notification failed.
type Notifier interface {
	Notify(ctx context.Context, notification models.Notification) error
}

// NewNotification stamps an id and time on a notification.
func NewNotification(kind models.NotificationKind, recipient models.Recipient, at time.Time, payload map[string]interface{}) models.Notification {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return models.Notification{
		ID:         uuid.NewString(),
		Recipient:  recipient,
		Kind:       kind,
		Payload:    payload,
		OccurredAt: at,
	}
}

// dispatch hands a notification to the notifier and records the outcome.
func dispatch(ctx context.Context, notifier Notifier, metrics *MetricsService, logger *zap.Logger, notification models.Notification) {
	if notifier == nil {
		return
	}
	if err := notifier.Notify(ctx, notification); err != nil {
		metrics.RecordNotification(notification.Kind, "failed")
		logger.Warn("notification failed",
			zap.String("kind", string(notification.Kind)),
			zap.String("recipient", notification.Recipient.ID),
			zap.Error(err))
		return
	}
	metrics.RecordNotification(notification.Kind, "sent")
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs the log adapter.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the event.
func (n *LogNotifier) Notify(_ context.Context, notification models.Notification) error {
	n.logger.Info("notification",
		zap.String("id", notification.ID),
		zap.String("kind", string(notification.Kind)),
		zap.String("recipient_type", string(notification.Recipient.Type)),
		zap.String("recipient_id", notification.Recipient.ID),
		zap.Any("payload", notification.Payload),
		zap.Time("occurred_at", notification.OccurredAt))
	return nil
}

type recipientDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListEnrolledInCohort(ctx context.Context, cohortID string) ([]models.User, error)
}

// mailSender posts a message and returns the HTTP status of the provider.
type mailSender func(ctx context.Context, message *sgmail.SGMailV3) (int, error)

func sendgridSender(apiKey string) mailSender {
	client := sendgrid.NewSendClient(apiKey)
	return func(ctx context.Context, message *sgmail.SGMailV3) (int, error) {
		res, err := client.SendWithContext(ctx, message)
		if err != nil {
			return 0, err
		}
		return res.StatusCode, nil
	}
}

// SendgridNotifier e-mails notifications through SendGrid.
type SendgridNotifier struct {
	directory recipientDirectory
	from      *sgmail.Email
	send      mailSender
	logger    *zap.Logger
}

// NewSendgridNotifier constructs the e-mail adapter.
func NewSendgridNotifier(apiKey, fromName, fromEmail string, directory recipientDirectory, logger *zap.Logger) *SendgridNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SendgridNotifier{
		directory: directory,
		from:      sgmail.NewEmail(fromName, fromEmail),
		send:      sendgridSender(apiKey),
		logger:    logger,
	}
}

// Notify resolves recipients and sends one message with every address in BCC for
// cohort-wide events.
func (n *SendgridNotifier) Notify(ctx context.Context, notification models.Notification) error {
	recipients, err := n.resolve(ctx, notification.Recipient)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		n.logger.Debug("notification has no deliverable recipients", zap.String("kind", string(notification.Kind)))
		return nil
	}

	subject, body := renderNotification(notification)
	p := sgmail.NewPersonalization()
	p.Subject = subject
	if notification.Recipient.Type == models.RecipientCohort {
		p.AddTos(n.from)
		for _, user := range recipients {
			p.AddBCCs(sgmail.NewEmail(user.FullName, user.Email))
		}
	} else {
		for _, user := range recipients {
			p.AddTos(sgmail.NewEmail(user.FullName, user.Email))
		}
	}

	message := sgmail.NewV3Mail()
	message.SetFrom(n.from)
	message.AddPersonalizations(p)
	message.AddContent(sgmail.NewContent("text/plain", body))

	status, err := n.send(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if status >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid send: status %d", status)
	}
	return nil
}

func (n *SendgridNotifier) resolve(ctx context.Context, recipient models.Recipient) ([]models.User, error) {
	switch recipient.Type {
	case models.RecipientLearner:
		user, err := n.directory.FindByID(ctx, recipient.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve learner %s: %w", recipient.ID, err)
		}
		if !user.Active || user.Email == "" {
			return nil, nil
		}
		return []models.User{*user}, nil
	case models.RecipientCohort:
		users, err := n.directory.ListEnrolledInCohort(ctx, recipient.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve cohort %s: %w", recipient.ID, err)
		}
		return users, nil
	default:
		return nil, fmt.Errorf("unknown recipient type %q", recipient.Type)
	}
}

func renderNotification(notification models.Notification) (string, string) {
	title, _ := notification.Payload["title"].(string)
	if title == "" {
		title, _ = notification.Payload["targetId"].(string)
	}
	switch notification.Kind {
	case models.NotifyContentReleased:
		kind, _ := notification.Payload["kind"].(string)
		return "New content available", fmt.Sprintf("%s %q is now available.", strings.ToLower(strings.ReplaceAll(kind, "_", " ")), title)
	case models.NotifySubmissionReceived:
		return "Submission received", fmt.Sprintf("We received your submission for %s.", title)
	case models.NotifySubmissionReviewed:
		status, _ := notification.Payload["status"].(string)
		return "Submission reviewed", fmt.Sprintf("Your submission for %s was reviewed: %s.", title, strings.ToLower(status))
	case models.NotifyResubmissionRequested:
		return "Resubmission requested", fmt.Sprintf("You may resubmit your answer for %s.", title)
	case models.NotifyResubmissionApproved:
		return "Resubmission approved", fmt.Sprintf("Your resubmission for %s was approved.", title)
	default:
		return string(notification.Kind), title
	}
}

// QueuedNotifier moves delivery off the request path onto a retrying worker queue.
type QueuedNotifier struct {
	queue *jobs.Queue
}

const notificationJobType = "notification"

// NewQueuedNotifier wraps inner with a worker queue. Start must be called before use.
func NewQueuedNotifier(inner Notifier, cfg jobs.QueueConfig) *QueuedNotifier {
	handler := func(ctx context.Context, job jobs.Job) error {
		notification, ok := job.Payload.(models.Notification)
		if !ok {
			return jobs.Permanent(fmt.Errorf("unexpected payload %T", job.Payload))
		}
		return inner.Notify(ctx, notification)
	}
	return &QueuedNotifier{queue: jobs.NewQueue("notifications", handler, cfg)}
}

// Start launches the workers.
func (n *QueuedNotifier) Start(ctx context.Context) {
	n.queue.Start(ctx)
}

// Stop drains buffered notifications and stops the workers.
func (n *QueuedNotifier) Stop() {
	n.queue.Stop()
}

// Notify enqueues the notification.
func (n *QueuedNotifier) Notify(_ context.Context, notification models.Notification) error {
	return n.queue.Enqueue(jobs.Job{ID: notification.ID, Type: notificationJobType, Payload: notification})
}
