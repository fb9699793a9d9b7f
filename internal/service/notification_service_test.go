package service

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/merturl4576/pyservice-mini-itsm/internal/config"
	"github.com/merturl4576/pyservice-mini-itsm/internal/domain"
	"github.com/merturl4576/pyservice-mini-itsm/internal/events"
)

type notificationRepoMock struct {
	created []domain.Notification
}

func (m *notificationRepoMock) Create(_ context.Context, record *domain.Notification) error {
	record.ID = testID("notif", len(m.created)+1)
	record.CreatedAt = time.Now().UTC()
	m.created = append(m.created, *record)
	return nil
}

func (m *notificationRepoMock) ListByUser(_ context.Context, userID string, _, _ int) ([]domain.Notification, error) {
	var result []domain.Notification
	for _, record := range m.created {
		if record.UserID == userID {
			result = append(result, record)
		}
	}
	return result, nil
}

func (m *notificationRepoMock) UnreadCount(_ context.Context, userID string) (int, error) {
	count := 0
	for _, record := range m.created {
		if record.UserID == userID && !record.IsRead {
			count++
		}
	}
	return count, nil
}

func (m *notificationRepoMock) MarkRead(_ context.Context, userID, notificationID string) error {
	for i := range m.created {
		if m.created[i].ID == notificationID && m.created[i].UserID == userID {
			m.created[i].IsRead = true
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (m *notificationRepoMock) forUser(userID string) []domain.Notification {
	var result []domain.Notification
	for _, record := range m.created {
		if record.UserID == userID {
			result = append(result, record)
		}
	}
	return result
}

func newNotificationFixture() (*NotificationService, *notificationRepoMock, events.Dispatcher) {
	repo := &notificationRepoMock{}
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	svc := NewNotificationService(repo, dispatcher, nil, zap.NewNop(), config.NotificationConfig{
		EmailFrom: "itsm@example.com",
	})
	svc.RegisterHandlers()
	return svc, repo, dispatcher
}

func assigneeID(id string) *string { return &id }

func TestNotificationOnIncidentClaimed(t *testing.T) {
	_, repo, dispatcher := newNotificationFixture()

	err := dispatcher.Publish(context.Background(), events.Event{
		Type:     events.EventIncidentClaimed,
		TicketID: "inc-1",
		Actor:    events.UserActor("tech"),
		Payload: events.IncidentStateChangedPayload{
			Number:     "INC0000001",
			OldState:   domain.IncidentStateNew,
			NewState:   domain.IncidentStateInProgress,
			AssigneeID: assigneeID("tech"),
		},
	})
	require.NoError(t, err)

	records := repo.forUser("tech")
	require.Len(t, records, 1)
	assert.Equal(t, domain.NotifyIncidentAssigned, records[0].Type)
	assert.Contains(t, records[0].Title, "INC0000001")
	assert.Equal(t, "/incidents/inc-1", records[0].Link)
}

func TestNotificationOnIncidentResolvedNotifiesCaller(t *testing.T) {
	_, repo, dispatcher := newNotificationFixture()

	// the caller hears about the fix, not the engineer who made it
	err := dispatcher.Publish(context.Background(), events.Event{
		Type:     events.EventIncidentResolved,
		TicketID: "inc-1",
		Actor:    events.UserActor("tech"),
		Payload: events.IncidentStateChangedPayload{
			Number:     "INC0000001",
			OldState:   domain.IncidentStateInProgress,
			NewState:   domain.IncidentStateResolved,
			CallerID:   "caller",
			AssigneeID: assigneeID("tech"),
			Notes:      "rebooted the switch",
		},
	})
	require.NoError(t, err)

	assert.Empty(t, repo.forUser("tech"))
	records := repo.forUser("caller")
	require.Len(t, records, 1)
	assert.Equal(t, domain.NotifyIncidentResolved, records[0].Type)
	assert.Equal(t, "rebooted the switch", records[0].Message)
	assert.Equal(t, "/incidents/inc-1", records[0].Link)
}

func TestNotificationOnSLAWarning(t *testing.T) {
	_, repo, dispatcher := newNotificationFixture()
	due := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)

	err := dispatcher.Publish(context.Background(), events.Event{
		Type:     events.EventSLAWarning,
		TicketID: "inc-1",
		Actor:    events.SystemActor(),
		Payload: events.SLAWarningPayload{
			Number:     "INC0000001",
			Priority:   domain.PriorityCritical,
			AssigneeID: assigneeID("tech"),
			DueDate:    due,
			Remaining:  30 * time.Minute,
		},
	})
	require.NoError(t, err)

	records := repo.forUser("tech")
	require.Len(t, records, 1)
	assert.Equal(t, domain.NotifySLAWarning, records[0].Type)
	assert.Contains(t, records[0].Message, "P1")
}

func TestNotificationSLAWarningUnassignedSkipped(t *testing.T) {
	_, repo, dispatcher := newNotificationFixture()

	err := dispatcher.Publish(context.Background(), events.Event{
		Type:     events.EventSLAWarning,
		TicketID: "inc-1",
		Actor:    events.SystemActor(),
		Payload: events.SLAWarningPayload{
			Number:   "INC0000001",
			Priority: domain.PriorityCritical,
			DueDate:  time.Now().UTC(),
		},
	})
	require.NoError(t, err)
	assert.Empty(t, repo.created)
}

func TestNotificationOnSLABreach(t *testing.T) {
	_, repo, dispatcher := newNotificationFixture()

	err := dispatcher.Publish(context.Background(), events.Event{
		Type:     events.EventSLABreached,
		TicketID: "inc-1",
		Actor:    events.SystemActor(),
		Payload: events.SLABreachedPayload{
			Number:     "INC0000001",
			Priority:   domain.PriorityCritical,
			AssigneeID: assigneeID("tech"),
			DueDate:    time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC),
		},
	})
	require.NoError(t, err)

	records := repo.forUser("tech")
	require.Len(t, records, 1)
	assert.Equal(t, domain.NotifySLABreached, records[0].Type)
}

func TestNotificationOnRequestLifecycle(t *testing.T) {
	_, repo, dispatcher := newNotificationFixture()
	ctx := context.Background()

	publish := func(eventType events.EventType, newState domain.RequestState, notes string) {
		err := dispatcher.Publish(ctx, events.Event{
			Type:     eventType,
			TicketID: "req-1",
			Actor:    events.UserActor("mgr"),
			Payload: events.RequestStateChangedPayload{
				Number:      "REQ0000001",
				NewState:    newState,
				RequesterID: "requester",
				Notes:       notes,
			},
		})
		require.NoError(t, err)
	}

	publish(events.EventRequestSubmitted, domain.RequestStateAwaitingApproval, "")
	publish(events.EventRequestApproved, domain.RequestStateApproved, "go ahead")
	publish(events.EventRequestCompleted, domain.RequestStateCompleted, "delivered")

	records := repo.forUser("requester")
	require.Len(t, records, 3)
	assert.Equal(t, domain.NotifyRequestSubmitted, records[0].Type)
	assert.Contains(t, records[0].Message, "awaiting approval")
	assert.Equal(t, domain.NotifyRequestApproved, records[1].Type)
	assert.Equal(t, domain.NotifyRequestCompleted, records[2].Type)
	for _, record := range records {
		assert.Equal(t, "/requests/req-1", record.Link)
	}
}

func TestNotificationOnAssetAllocated(t *testing.T) {
	_, repo, dispatcher := newNotificationFixture()

	err := dispatcher.Publish(context.Background(), events.Event{
		Type:     events.EventAssetAllocated,
		TicketID: "req-1",
		Actor:    events.SystemActor(),
		Payload: events.AssetAllocatedPayload{
			AssetID:    "asset-1",
			AssetName:  "ThinkPad T14",
			AssetType:  domain.AssetTypeLaptop,
			AssignedTo: "requester",
		},
	})
	require.NoError(t, err)

	records := repo.forUser("requester")
	require.Len(t, records, 1)
	assert.Equal(t, domain.NotifyAssetAssigned, records[0].Type)
	assert.Contains(t, records[0].Title, "ThinkPad T14")
}

func TestNotificationReadTracking(t *testing.T) {
	svc, _, dispatcher := newNotificationFixture()
	ctx := context.Background()

	err := dispatcher.Publish(ctx, events.Event{
		Type:     events.EventIncidentClaimed,
		TicketID: "inc-1",
		Actor:    events.UserActor("tech"),
		Payload: events.IncidentStateChangedPayload{
			Number:     "INC0000001",
			AssigneeID: assigneeID("tech"),
			NewState:   domain.IncidentStateInProgress,
		},
	})
	require.NoError(t, err)

	count, err := svc.UnreadCount(ctx, "tech")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	records, err := svc.ListForUser(ctx, "tech", 20, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)

	require.NoError(t, svc.MarkRead(ctx, "tech", records[0].ID))
	count, err = svc.UnreadCount(ctx, "tech")
	require.NoError(t, err)
	assert.Zero(t, count)

	// a user cannot mark someone else's notification
	err = svc.MarkRead(ctx, "other", records[0].ID)
	require.Error(t, err)
}
