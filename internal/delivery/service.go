// Package delivery fans a rendered notification out to the in-app inbox,
// live client sessions, and registered mobile devices.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/nhle/journalmate/internal/clock"
	"github.com/nhle/journalmate/internal/metrics"
	"github.com/nhle/journalmate/internal/model"
	"github.com/nhle/journalmate/internal/push"
	"github.com/nhle/journalmate/internal/realtime"
)

// Payload is the rendered content handed to SendUserNotification.
type Payload struct {
	Title    string
	Body     string
	Type     string
	Route    string
	Metadata map[string]any
}

// Store is the persistence the delivery service needs.
type Store interface {
	CreateUserNotification(ctx context.Context, n model.UserNotification) error
	GetDeviceTokens(ctx context.Context, userID string) ([]model.DeviceToken, error)
	DeleteDeviceToken(ctx context.Context, token string) error
	GetNotificationPreferences(ctx context.Context, userID string) (*model.NotificationPreferences, error)
}

// LivePublisher broadcasts an event to a user's connected sessions.
type LivePublisher interface {
	Publish(ctx context.Context, userID string, event realtime.Event) (int64, error)
}

// PushSender delivers a push message to one device token.
type PushSender interface {
	Send(ctx context.Context, token string, msg push.Message) error
}

// Service implements the delivery port.
type Service struct {
	store   Store
	live    LivePublisher
	push    PushSender
	clock   clock.Clock
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithLivePublisher enables the live-socket leg.
func WithLivePublisher(p LivePublisher) Option {
	return func(s *Service) { s.live = p }
}

// WithPushSender enables the mobile push leg.
func WithPushSender(p PushSender) Option {
	return func(s *Service) { s.push = p }
}

// WithClock sets the clock stamped on in-app records.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) { s.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a delivery service. Legs without a configured
// publisher or sender are skipped.
func NewService(st Store, opts ...Option) *Service {
	s := &Service{
		store: st,
		clock: clock.NewReal(),
		log:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendUserNotification records the in-app notification, publishes it to
// live sessions, and pushes it to the user's devices when browser
// notifications are enabled. Only an in-app failure is returned as an
// error: once the record exists the notification counts as delivered, and
// live or push problems are logged and counted per leg.
func (s *Service) SendUserNotification(ctx context.Context, userID string, p Payload) error {
	log := s.log.WithFields(logrus.Fields{"user_id": userID, "notification_type": p.Type})

	record := model.UserNotification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      p.Type,
		Title:     p.Title,
		Body:      p.Body,
		Route:     p.Route,
		Metadata:  p.Metadata,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.store.CreateUserNotification(ctx, record); err != nil {
		s.metrics.IncDeliveryFailure(metrics.LegInApp)
		return fmt.Errorf("recording in-app notification: %w", err)
	}

	if s.live != nil {
		event := realtime.Event{
			ID:        record.ID,
			UserID:    userID,
			Type:      p.Type,
			Title:     p.Title,
			Body:      p.Body,
			Route:     p.Route,
			Metadata:  p.Metadata,
			CreatedAt: record.CreatedAt,
		}
		if _, err := s.live.Publish(ctx, userID, event); err != nil {
			s.metrics.IncDeliveryFailure(metrics.LegLive)
			log.WithError(err).Warn("publishing live notification")
		}
	}

	if s.push == nil {
		return nil
	}
	prefs, err := s.store.GetNotificationPreferences(ctx, userID)
	if err != nil {
		s.metrics.IncDeliveryFailure(metrics.LegPush)
		log.WithError(err).Warn("loading preferences, skipping push")
		return nil
	}
	if !prefs.EnableBrowserNotifications {
		log.Debug("push disabled by preferences")
		return nil
	}
	s.pushAll(ctx, log, userID, record.ID, p)
	return nil
}

// pushAll sends to every registered device. Tokens the gateway rejects
// as unregistered are removed and do not count as failed devices.
func (s *Service) pushAll(ctx context.Context, log logrus.FieldLogger, userID, recordID string, p Payload) {
	tokens, err := s.store.GetDeviceTokens(ctx, userID)
	if err != nil {
		s.metrics.IncDeliveryFailure(metrics.LegPush)
		log.WithError(err).Warn("loading device tokens, skipping push")
		return
	}

	msg := pushMessage(recordID, p)
	live, failed := 0, 0
	var lastErr error
	for _, t := range tokens {
		err := s.push.Send(ctx, t.Token, msg)
		if err == nil {
			live++
			continue
		}
		tlog := log.WithFields(logrus.Fields{"platform": t.Platform, "device_token_id": t.ID})
		if errors.Is(err, push.ErrInvalidToken) {
			if delErr := s.store.DeleteDeviceToken(ctx, t.Token); delErr != nil {
				tlog.WithError(delErr).Error("removing invalid device token")
			} else {
				tlog.Info("removed invalid device token")
			}
			continue
		}
		live++
		failed++
		lastErr = err
		s.metrics.IncDeliveryFailure(metrics.LegPush)
		tlog.WithError(err).Error("sending push notification")
	}

	if failed > 0 && failed == live {
		log.WithError(lastErr).WithField("devices", failed).Warn("push failed for every device")
	}
}

// pushMessage builds the device payload. Data values must be strings for
// the platform gateways.
func pushMessage(recordID string, p Payload) push.Message {
	data := map[string]string{
		"notificationId": recordID,
		"type":           p.Type,
	}
	if p.Route != "" {
		data["route"] = p.Route
	}
	for _, key := range []string{model.MetaCategory, model.MetaLocation, model.MetaMilestone} {
		if v, ok := p.Metadata[key]; ok && v != nil {
			data[key] = cast.ToString(v)
		}
	}
	if v, ok := p.Metadata[model.MetaLeadMinutes]; ok {
		data[model.MetaLeadMinutes] = strconv.Itoa(cast.ToInt(v))
	}

	return push.Message{
		Title:    p.Title,
		Body:     p.Body,
		Data:     data,
		Priority: cast.ToString(p.Metadata[model.MetaPriority]),
		Channel:  cast.ToString(p.Metadata[model.MetaChannel]),
		Haptic:   cast.ToString(p.Metadata[model.MetaHaptic]),
	}
}
