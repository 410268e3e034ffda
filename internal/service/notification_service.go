package service

import (
	"context"
	"errors"

	"github.com/Palaxis/MTUCI-EDA/internal/event"
	"github.com/Palaxis/MTUCI-EDA/internal/model"
	"github.com/Palaxis/MTUCI-EDA/internal/notifier"
	"github.com/Palaxis/MTUCI-EDA/internal/repo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NotificationConsumerName identifies this consumer in the dedup ledger.
const NotificationConsumerName = "notification-dispatcher"

// NotificationService turns lifecycle and acceptance events into at-least-once
// notifications, deduplicated by event identity. Send happens before the ledger
// record: a crash in between redelivers the event, and the ledger check makes
// the redelivery a no-op only once the record committed.
type NotificationService struct {
	repo   repo.RepositoryInterface
	sender notifier.Sender
	log    *zap.SugaredLogger
}

// NewNotificationService returns NotificationService.
func NewNotificationService(r repo.RepositoryInterface, sender notifier.Sender, logger *zap.SugaredLogger) *NotificationService {
	return &NotificationService{repo: r, sender: sender, log: logger}
}

// HandleEvent processes one envelope. Returns nil when the message should be
// acknowledged (sent, duplicate, or recorded permanent failure) and a transient
// error when the broker should redeliver.
func (s *NotificationService) HandleEvent(ctx context.Context, env event.Envelope) error {
	done, err := s.repo.EventProcessed(ctx, s.repo.DB(ctx), env.EventID, NotificationConsumerName)
	if err != nil {
		return Transient(err)
	}
	if done {
		s.log.Debugf("duplicate event %s, skipping", env.EventID)
		return nil
	}

	msgs, err := notifier.Render(env)
	if err != nil {
		if errors.Is(err, notifier.ErrUnknownEventType) {
			// Forward compatibility: newer producers may emit types we do not
			// render yet. Record and acknowledge.
			s.log.Warnf("event %s: %v", env.EventID, err)
			return s.record(ctx, env, nil, false, "")
		}
		return s.dead(ctx, env, nil, err)
	}

	for _, m := range msgs {
		if err := s.sender.Send(ctx, m); err != nil {
			if errors.Is(err, notifier.ErrPermanent) {
				return s.dead(ctx, env, msgs, err)
			}
			// Transient send failure: no ledger record, let the broker
			// redeliver the whole envelope.
			return Transient(err)
		}
	}
	return s.record(ctx, env, msgs, false, "")
}

// record commits the notification audit rows and the ledger entry atomically.
func (s *NotificationService) record(ctx context.Context, env event.Envelope, msgs []notifier.Message, failed bool, reason string) error {
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		status := model.NotificationSent
		if failed {
			status = model.NotificationDead
		}
		for _, m := range msgs {
			n := &model.Notification{
				EventID:   env.EventID,
				OrderID:   env.OrderID,
				Recipient: m.Recipient,
				Subject:   m.Subject,
				Body:      m.Body,
				Status:    status,
				Reason:    reason,
			}
			if err := s.repo.CreateNotification(ctx, tx, n); err != nil {
				return err
			}
		}
		rec := &model.ProcessedEvent{
			EventID:      env.EventID,
			ConsumerName: NotificationConsumerName,
			Failed:       failed,
		}
		if err := s.repo.RecordProcessedEvent(ctx, tx, rec); err != nil {
			if repo.IsDuplicateKey(err) {
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return Transient(err)
	}
	return nil
}

// dead records a permanent failure so redelivery stops, and surfaces it on the
// operational dead-letter view.
func (s *NotificationService) dead(ctx context.Context, env event.Envelope, msgs []notifier.Message, cause error) error {
	s.log.Errorf("event %s dead-lettered: %v", env.EventID, cause)
	if len(msgs) == 0 {
		msgs = []notifier.Message{{
			Recipient: "unresolved",
			Subject:   env.EventType,
			Body:      string(env.Payload),
		}}
	}
	return s.record(ctx, env, msgs, true, cause.Error())
}
