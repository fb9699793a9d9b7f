package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/merturl4576/pyservice-mini-itsm/internal/config"
	"github.com/merturl4576/pyservice-mini-itsm/internal/domain"
	"github.com/merturl4576/pyservice-mini-itsm/internal/events"
	"github.com/merturl4576/pyservice-mini-itsm/internal/persistence"
	"github.com/merturl4576/pyservice-mini-itsm/internal/repository"
)

// NotificationService turns domain events into in-app notification rows
// and email stubs. Delivery is best effort: a failed write is logged and
// never propagated back into the transition that raised the event.
type NotificationService struct {
	notifications repository.NotificationRepository
	dispatcher    events.Dispatcher
	redis         *persistence.Redis
	logger        *zap.Logger
	cfg           config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(notifications repository.NotificationRepository, dispatcher events.Dispatcher, redis *persistence.Redis, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		dispatcher:    dispatcher,
		redis:         redis,
		logger:        logger,
		cfg:           cfg,
	}
}

// RegisterHandlers subscribes to the event stream.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventIncidentClaimed, n.handleIncidentClaimed)
	n.dispatcher.Subscribe(events.EventIncidentResolved, n.handleIncidentResolved)
	n.dispatcher.Subscribe(events.EventIncidentEscalated, n.handleIncidentEscalated)
	n.dispatcher.Subscribe(events.EventSLAWarning, n.handleSLAWarning)
	n.dispatcher.Subscribe(events.EventSLABreached, n.handleSLABreached)
	n.dispatcher.Subscribe(events.EventRequestSubmitted, n.handleRequestSubmitted)
	n.dispatcher.Subscribe(events.EventRequestApproved, n.handleRequestApproved)
	n.dispatcher.Subscribe(events.EventRequestRejected, n.handleRequestRejected)
	n.dispatcher.Subscribe(events.EventRequestCompleted, n.handleRequestCompleted)
	n.dispatcher.Subscribe(events.EventAssetAllocated, n.handleAssetAllocated)
}

// ListForUser returns a page of the user's notifications.
func (n *NotificationService) ListForUser(ctx context.Context, userID string, limit, offset int) ([]domain.Notification, error) {
	return n.notifications.ListByUser(ctx, userID, limit, offset)
}

// UnreadCount returns how many notifications the user has not read.
func (n *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	return n.notifications.UnreadCount(ctx, userID)
}

// MarkRead flags one notification as read for its owner.
func (n *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) error {
	return n.notifications.MarkRead(ctx, userID, notificationID)
}

func (n *NotificationService) handleIncidentClaimed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.IncidentStateChangedPayload)
	if !ok {
		return nil
	}
	if payload.AssigneeID != nil {
		n.deliver(ctx, *payload.AssigneeID, domain.NotifyIncidentAssigned,
			fmt.Sprintf("Incident %s assigned to you", payload.Number),
			fmt.Sprintf("You are now working on %s.", payload.Number),
			ticketLink("incidents", event.TicketID))
	}
	return nil
}

func (n *NotificationService) handleIncidentResolved(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.IncidentStateChangedPayload)
	if !ok {
		return nil
	}
	// The caller learns their incident is fixed; notes travel in the body.
	target := payload.CallerID
	if target == "" && event.Actor.UserID != nil {
		target = *event.Actor.UserID
	}
	if target != "" {
		n.deliver(ctx, target, domain.NotifyIncidentResolved,
			fmt.Sprintf("Incident %s resolved", payload.Number),
			payload.Notes,
			ticketLink("incidents", event.TicketID))
	}
	return nil
}

func (n *NotificationService) handleIncidentEscalated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.IncidentStateChangedPayload)
	if !ok {
		return nil
	}
	if payload.AssigneeID != nil {
		n.deliver(ctx, *payload.AssigneeID, domain.NotifyIncidentEscalated,
			fmt.Sprintf("Incident %s needs help", payload.Number),
			payload.Notes,
			ticketLink("incidents", event.TicketID))
	}
	return nil
}

func (n *NotificationService) handleSLAWarning(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.SLAWarningPayload)
	if !ok {
		return nil
	}
	if payload.AssigneeID == nil {
		return nil
	}
	fresh, err := n.dedupWarning(ctx, *payload.AssigneeID)
	if err != nil {
		n.logger.Warn("warning dedup check failed", zap.Error(err))
	}
	if !fresh {
		return nil
	}
	n.deliver(ctx, *payload.AssigneeID, domain.NotifySLAWarning,
		fmt.Sprintf("SLA warning: %s due soon", payload.Number),
		fmt.Sprintf("%s is due at %s (P%d).", payload.Number, payload.DueDate.Format(time.RFC3339), payload.Priority),
		ticketLink("incidents", event.TicketID))
	return nil
}

func (n *NotificationService) handleSLABreached(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.SLABreachedPayload)
	if !ok {
		return nil
	}
	if payload.AssigneeID != nil {
		n.deliver(ctx, *payload.AssigneeID, domain.NotifySLABreached,
			fmt.Sprintf("SLA breached: %s", payload.Number),
			fmt.Sprintf("%s passed its due date %s (P%d).", payload.Number, payload.DueDate.Format(time.RFC3339), payload.Priority),
			ticketLink("incidents", event.TicketID))
	}
	n.sendEmailStub(event)
	return nil
}

func (n *NotificationService) handleRequestSubmitted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.RequestStateChangedPayload)
	if !ok {
		return nil
	}
	n.deliver(ctx, payload.RequesterID, domain.NotifyRequestSubmitted,
		fmt.Sprintf("Request %s submitted", payload.Number),
		fmt.Sprintf("Your request %s is now %s.", payload.Number, strings.ReplaceAll(string(payload.NewState), "_", " ")),
		ticketLink("requests", event.TicketID))
	return nil
}

func (n *NotificationService) handleRequestApproved(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.RequestStateChangedPayload)
	if !ok {
		return nil
	}
	n.deliver(ctx, payload.RequesterID, domain.NotifyRequestApproved,
		fmt.Sprintf("Request %s approved", payload.Number),
		payload.Notes,
		ticketLink("requests", event.TicketID))
	return nil
}

func (n *NotificationService) handleRequestRejected(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.RequestStateChangedPayload)
	if !ok {
		return nil
	}
	n.deliver(ctx, payload.RequesterID, domain.NotifyRequestRejected,
		fmt.Sprintf("Request %s rejected", payload.Number),
		payload.Notes,
		ticketLink("requests", event.TicketID))
	return nil
}

func (n *NotificationService) handleRequestCompleted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.RequestStateChangedPayload)
	if !ok {
		return nil
	}
	n.deliver(ctx, payload.RequesterID, domain.NotifyRequestCompleted,
		fmt.Sprintf("Request %s completed", payload.Number),
		payload.Notes,
		ticketLink("requests", event.TicketID))
	return nil
}

func (n *NotificationService) handleAssetAllocated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.AssetAllocatedPayload)
	if !ok {
		return nil
	}
	n.deliver(ctx, payload.AssignedTo, domain.NotifyAssetAssigned,
		fmt.Sprintf("Asset assigned: %s", payload.AssetName),
		fmt.Sprintf("A %s has been reserved for you.", payload.AssetType),
		ticketLink("requests", event.TicketID))
	return nil
}

// dedupWarning reports whether a warning for this assignee is fresh,
// claiming the dedup window as a side effect.
func (n *NotificationService) dedupWarning(ctx context.Context, assigneeID string) (bool, error) {
	if n.redis == nil {
		return true, nil
	}
	ttl := time.Duration(n.cfg.WarningDedupTTLHr) * time.Hour
	if ttl <= 0 {
		ttl = time.Hour
	}
	return n.redis.SetDedupKey(ctx, "sla_warning:"+assigneeID, ttl)
}

func (n *NotificationService) deliver(ctx context.Context, userID string, kind domain.NotificationType, title, message, link string) {
	record := &domain.Notification{
		UserID:  userID,
		Type:    kind,
		Title:   title,
		Message: message,
		Link:    link,
	}
	if err := n.notifications.Create(ctx, record); err != nil {
		n.logger.Warn("notification write failed",
			zap.String("user_id", userID),
			zap.String("notif_type", string(kind)),
			zap.Error(err))
	}
}

func (n *NotificationService) sendEmailStub(event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}

func ticketLink(kind, id string) string {
	return "/" + kind + "/" + id
}
