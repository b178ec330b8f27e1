package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/curriculum-gate-api/internal/models"
	"github.com/noah-isme/curriculum-gate-api/pkg/jobs"
)

type directoryStub struct {
	users  map[string]*models.User
	cohort map[string][]models.User
}

func (d directoryStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := d.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (d directoryStub) ListEnrolledInCohort(ctx context.Context, cohortID string) ([]models.User, error) {
	return d.cohort[cohortID], nil
}

func newSendgridForTest(status int, sendErr error) (*SendgridNotifier, *[]*sgmail.SGMailV3) {
	directory := directoryStub{
		users: map[string]*models.User{
			"learner-1": {ID: "learner-1", Email: "ana@example.com", FullName: "Ana", Active: true},
			"learner-2": {ID: "learner-2", Email: "budi@example.com", FullName: "Budi", Active: false},
		},
		cohort: map[string][]models.User{
			"cohort-a": {{ID: "learner-1", Email: "ana@example.com", FullName: "Ana"}, {ID: "learner-3", Email: "cici@example.com", FullName: "Cici"}},
		},
	}
	n := NewSendgridNotifier("key", "Curriculum", "noreply@example.com", directory, nil)
	sent := make([]*sgmail.SGMailV3, 0)
	n.send = func(ctx context.Context, message *sgmail.SGMailV3) (int, error) {
		sent = append(sent, message)
		return status, sendErr
	}
	return n, &sent
}

func TestSendgridNotifierLearner(t *testing.T) {
	n, sent := newSendgridForTest(202, nil)
	notification := NewNotification(models.NotifySubmissionReviewed, models.LearnerRecipient("learner-1"), fixtureNow, map[string]interface{}{"title": "Variables", "status": "APPROVED"})

	require.NoError(t, n.Notify(context.Background(), notification))
	require.Len(t, *sent, 1)
	msg := (*sent)[0]
	require.Len(t, msg.Personalizations, 1)
	assert.Equal(t, "Submission reviewed", msg.Personalizations[0].Subject)
	require.Len(t, msg.Personalizations[0].To, 1)
	assert.Equal(t, "ana@example.com", msg.Personalizations[0].To[0].Address)
	assert.Contains(t, msg.Content[0].Value, "Variables")
	assert.Contains(t, msg.Content[0].Value, "approved")
}

func TestSendgridNotifierCohortUsesBCC(t *testing.T) {
	n, sent := newSendgridForTest(202, nil)
	notification := NewNotification(models.NotifyContentReleased, models.CohortRecipient("cohort-a"), fixtureNow, map[string]interface{}{"title": "Loops", "kind": "UNIT"})

	require.NoError(t, n.Notify(context.Background(), notification))
	require.Len(t, *sent, 1)
	p := (*sent)[0].Personalizations[0]
	assert.Len(t, p.BCC, 2)
	require.Len(t, p.To, 1)
	assert.Equal(t, "noreply@example.com", p.To[0].Address)
}

func TestSendgridNotifierSkipsInactiveAndSurfacesFailures(t *testing.T) {
	n, sent := newSendgridForTest(202, nil)
	require.NoError(t, n.Notify(context.Background(), NewNotification(models.NotifySubmissionReceived, models.LearnerRecipient("learner-2"), fixtureNow, nil)))
	assert.Empty(t, *sent)

	assert.Error(t, n.Notify(context.Background(), NewNotification(models.NotifySubmissionReceived, models.LearnerRecipient("ghost"), fixtureNow, nil)))

	failing, _ := newSendgridForTest(500, nil)
	assert.Error(t, failing.Notify(context.Background(), NewNotification(models.NotifySubmissionReceived, models.LearnerRecipient("learner-1"), fixtureNow, nil)))

	broken, _ := newSendgridForTest(0, errors.New("dial tcp"))
	assert.Error(t, broken.Notify(context.Background(), NewNotification(models.NotifySubmissionReceived, models.LearnerRecipient("learner-1"), fixtureNow, nil)))
}

func TestLogNotifierWritesEvent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	require.NoError(t, n.Notify(context.Background(), NewNotification(models.NotifyResubmissionRequested, models.LearnerRecipient("learner-1"), fixtureNow, nil)))
	entries := logs.FilterMessage("notification").All()
	require.Len(t, entries, 1)
	assert.Equal(t, string(models.NotifyResubmissionRequested), entries[0].ContextMap()["kind"])
}

func TestQueuedNotifierDeliversInBackground(t *testing.T) {
	inner := &notifierStub{}
	q := NewQueuedNotifier(inner, jobs.QueueConfig{Workers: 1, RetryDelay: time.Millisecond})
	q.Start(context.Background())

	require.NoError(t, q.Notify(context.Background(), NewNotification(models.NotifySubmissionReceived, models.LearnerRecipient("learner-1"), fixtureNow, nil)))
	q.Stop()
	assert.Equal(t, []models.NotificationKind{models.NotifySubmissionReceived}, inner.kinds())
}

func TestDispatchSwallowsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	dispatch(context.Background(), &notifierStub{err: errors.New("down")}, NewMetricsService(), zap.New(core), NewNotification(models.NotifySubmissionReceived, models.LearnerRecipient("l"), fixtureNow, nil))
	assert.Equal(t, 1, logs.FilterMessage("notification failed").Len())

	dispatch(context.Background(), nil, nil, zap.NewNop(), models.Notification{})
}
