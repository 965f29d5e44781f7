// Package scheduler computes reminder instants for domain entities and
// persists them as pending scheduled notifications.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/nhle/journalmate/internal/clock"
	"github.com/nhle/journalmate/internal/metrics"
	"github.com/nhle/journalmate/internal/model"
	"github.com/nhle/journalmate/internal/store"
	"github.com/nhle/journalmate/internal/templates"
	"github.com/nhle/journalmate/internal/timefield"
)

// ErrUnknownTemplate is returned when an immediate notification names a
// type with no registered template.
var ErrUnknownTemplate = errors.New("unknown notification template")

// Default local hours for computed reminders.
const (
	DefaultMorningHour = 8
	streakCheckHour    = 20
	accountabilityHour = 9
)

// varKeys are the entity fields copied into the render context.
var varKeys = []string{"title", "location", "activityTitle", "openTasks", "progress"}

// Scheduler computes and persists reminders.
type Scheduler struct {
	store           store.Store
	clock           clock.Clock
	log             logrus.FieldLogger
	metrics         *metrics.Metrics
	defaultTimezone string
	morningHour     int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used for "now".
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Scheduler) {
		s.log = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithDefaultTimezone sets the zone used when neither the user nor the
// preferences name one.
func WithDefaultTimezone(name string) Option {
	return func(s *Scheduler) {
		s.defaultTimezone = name
	}
}

// WithMorningHour sets the local hour of morning-of reminders.
func WithMorningHour(hour int) Option {
	return func(s *Scheduler) {
		if hour >= 0 && hour <= 23 {
			s.morningHour = hour
		}
	}
}

// New creates a Scheduler backed by st.
func New(st store.Store, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:           st,
		clock:           clock.NewReal(),
		log:             logrus.StandardLogger(),
		defaultTimezone: "UTC",
		morningHour:     DefaultMorningHour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// userContext is what every scheduling path needs to know about a user.
type userContext struct {
	prefs    *model.NotificationPreferences
	loc      *time.Location
	timezone string
}

// loadUser reads the user's preferences and resolves their timezone: the
// user record wins, then the preferences, then the configured default.
func (s *Scheduler) loadUser(ctx context.Context, userID string) (userContext, error) {
	prefs, err := s.store.GetNotificationPreferences(ctx, userID)
	if err != nil {
		return userContext{}, fmt.Errorf("loading preferences for %s: %w", userID, err)
	}

	var userZone string
	user, err := s.store.GetUser(ctx, userID)
	switch {
	case err == nil:
		userZone = user.Timezone
	case errors.Is(err, store.ErrNotFound):
	default:
		s.log.WithError(err).WithField("user_id", userID).Warn("loading user, using preference timezone")
	}

	loc := clock.ResolveLocation(userZone, prefs.Timezone, s.defaultTimezone)
	return userContext{prefs: prefs, loc: loc, timezone: loc.String()}, nil
}

// AutoSchedule extracts every time field from entity and persists the
// reminders that still lie in the future. It returns how many rows were
// created. Failures are logged per candidate and never abort siblings.
func (s *Scheduler) AutoSchedule(
	ctx context.Context,
	entity timefield.Entity,
	entityType model.SourceType,
	entityID, userID string,
) int {
	log := s.log.WithFields(logrus.Fields{
		"user_id":     userID,
		"source_type": entityType,
		"source_id":   entityID,
	})

	fields := timefield.Extract(entity)
	if len(fields) == 0 {
		return 0
	}

	uc, err := s.loadUser(ctx, userID)
	if err != nil {
		log.WithError(err).Error("scheduling skipped")
		return 0
	}

	vars := entityVars(entity)
	created := 0
	for _, f := range fields {
		created += s.scheduleField(ctx, log, fieldRequest{
			field:      f,
			entityType: entityType,
			entityID:   entityID,
			userID:     userID,
			user:       uc,
			vars:       vars,
		})
	}

	s.metrics.IncScheduled(string(entityType), created)
	if created > 0 {
		log.WithField("count", created).Info("scheduled notifications")
	}
	return created
}

// Reschedule cancels the pending reminders of an entity and schedules
// them again from its current data.
func (s *Scheduler) Reschedule(
	ctx context.Context,
	entity timefield.Entity,
	entityType model.SourceType,
	entityID, userID string,
) int {
	if _, err := s.CancelForSource(ctx, entityType, entityID); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"source_type": entityType,
			"source_id":   entityID,
		}).Error("cancelling before reschedule")
	}
	return s.AutoSchedule(ctx, entity, entityType, entityID, userID)
}

// CancelForSource marks every pending reminder of a source as cancelled.
// Cancelling an already-cancelled source returns zero.
func (s *Scheduler) CancelForSource(ctx context.Context, sourceType model.SourceType, sourceID string) (int, error) {
	n, err := s.store.CancelSmartNotifications(ctx, sourceType, sourceID)
	if err != nil {
		return 0, fmt.Errorf("cancelling %s/%s: %w", sourceType, sourceID, err)
	}
	s.metrics.IncCancelled(n)
	if n > 0 {
		s.log.WithFields(logrus.Fields{
			"source_type": sourceType,
			"source_id":   sourceID,
			"count":       n,
		}).Debug("cancelled notifications")
	}
	return n, nil
}

type fieldRequest struct {
	field      model.TimeField
	entityType model.SourceType
	entityID   string
	userID     string
	user       userContext
	vars       templates.Vars
}

// scheduleField persists one row per lead whose instant is still ahead.
func (s *Scheduler) scheduleField(ctx context.Context, log logrus.FieldLogger, req fieldRequest) int {
	f := req.field
	log = log.WithFields(logrus.Fields{"field": f.FieldName, "context": f.Context})

	if !categoryEnabled(req.user.prefs, req.entityType, f.Context) {
		log.Debug("category disabled")
		return 0
	}

	now := s.clock.Now()

	vars := req.vars
	if f.Label != "" {
		vars = withVar(vars, "label", f.Label)
	}

	created := 0
	for _, lead := range leadsFor(f.Context, req.user.prefs) {
		at := CandidateAt(f.Value, lead, req.user.loc, s.morningHour)
		if !at.After(now) {
			log.WithField("lead", lead).Debug("candidate in the past")
			continue
		}

		nt := notificationType(req.entityType, f, lead)
		entry := log.WithField("notification_type", nt)

		existing, err := s.store.FindPendingSmartNotification(ctx, req.userID, req.entityType, req.entityID, nt)
		if err != nil {
			entry.WithError(err).Error("dedup check")
			continue
		}
		if existing != nil {
			entry.Debug("already pending")
			continue
		}

		msg := s.render(entry, req.entityType, f.Context, lead, vars)
		n := &model.ScheduledNotification{
			UserID:           req.userID,
			SourceType:       req.entityType,
			SourceID:         req.entityID,
			NotificationType: nt,
			Title:            msg.Title,
			Body:             msg.Body,
			ScheduledAt:      at,
			Timezone:         req.user.timezone,
			Route:            Route(req.entityType, req.entityID),
			Status:           model.StatusPending,
			Metadata: map[string]any{
				model.MetaHaptic:      string(Haptic(f.Context, lead)),
				model.MetaChannel:     Channel(req.entityType),
				model.MetaCategory:    msg.Category,
				model.MetaPriority:    string(msg.Priority),
				model.MetaField:       f.FieldName,
				model.MetaContext:     f.Context,
				model.MetaLeadMinutes: lead,
			},
		}
		if place := cast.ToString(vars["location"]); place != "" {
			n.Metadata[model.MetaLocation] = place
		}
		if f.Label != "" {
			n.Metadata[model.MetaLabel] = f.Label
			n.Metadata[model.MetaStep] = f.Step
		}

		if err := s.store.CreateSmartNotification(ctx, n); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				entry.Debug("already pending")
				continue
			}
			entry.WithError(err).Error("persisting notification")
			continue
		}
		created++
	}
	return created
}

// render looks up the entity-specific template, then the context-generic
// one, then the hard-coded fallback.
func (s *Scheduler) render(
	log logrus.FieldLogger,
	entityType model.SourceType,
	context string,
	lead int,
	vars templates.Vars,
) templates.Message {
	if msg, ok := templates.Generate(templates.Key(string(entityType), context, lead), vars); ok {
		return msg
	}
	if msg, ok := templates.Generate(templates.Key("", context, lead), vars); ok {
		return msg
	}
	log.Warn("no template registered, using fallback")
	return templates.Fallback(context, lead, vars)
}

// routeVar overrides the derived deep link of an immediate notification.
const routeVar = "route"

// Immediate renders notificationType and persists a row due now. With
// dedupe set, it returns nil when a pending or sent row already exists for
// the same key. It also returns nil when the user disabled the category.
func (s *Scheduler) Immediate(
	ctx context.Context,
	userID string,
	sourceType model.SourceType,
	sourceID, notificationType string,
	vars templates.Vars,
	dedupe bool,
) (*model.ScheduledNotification, error) {
	log := s.log.WithFields(logrus.Fields{
		"user_id":           userID,
		"source_type":       sourceType,
		"source_id":         sourceID,
		"notification_type": notificationType,
	})

	msg, ok := templates.Generate(notificationType, vars)
	if !ok {
		log.Warn("no template registered")
		return nil, fmt.Errorf("immediate %s: %w", notificationType, ErrUnknownTemplate)
	}

	if dedupe {
		existing, err := s.store.FindPendingSmartNotification(ctx, userID, sourceType, sourceID, notificationType,
			model.StatusPending, model.StatusSent)
		if err != nil {
			return nil, fmt.Errorf("checking existing %s: %w", notificationType, err)
		}
		if existing != nil {
			log.Debug("already notified")
			return nil, nil
		}
	}

	uc, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !immediateEnabled(uc.prefs, msg.Category) {
		log.Debug("category disabled")
		return nil, nil
	}

	n := &model.ScheduledNotification{
		UserID:           userID,
		SourceType:       sourceType,
		SourceID:         sourceID,
		NotificationType: notificationType,
		Title:            msg.Title,
		Body:             msg.Body,
		ScheduledAt:      s.clock.Now(),
		Timezone:         uc.timezone,
		Route:            Route(sourceType, sourceID),
		Status:           model.StatusPending,
		Metadata: map[string]any{
			model.MetaHaptic:   string(msg.Haptic),
			model.MetaChannel:  msg.Channel,
			model.MetaCategory: msg.Category,
			model.MetaPriority: string(msg.Priority),
		},
	}
	if route := cast.ToString(vars[routeVar]); route != "" {
		n.Route = route
	}
	if len(vars) > 0 {
		n.Metadata[model.MetaVars] = map[string]any(vars)
	}
	if m, ok := vars["milestone"]; ok {
		n.Metadata[model.MetaMilestone] = m
	}

	if err := s.store.CreateSmartNotification(ctx, n); err != nil {
		if errors.Is(err, store.ErrDuplicate) && dedupe {
			return nil, nil
		}
		return nil, fmt.Errorf("persisting %s: %w", notificationType, err)
	}
	s.metrics.IncScheduled(string(sourceType), 1)
	return n, nil
}

// entityVars copies the render-relevant fields of an entity.
func entityVars(entity timefield.Entity) templates.Vars {
	vars := templates.Vars{}
	for _, k := range varKeys {
		if v, ok := entity[k]; ok && v != nil {
			vars[k] = v
		}
	}
	if _, ok := vars["title"]; !ok {
		if name, ok := entity["name"]; ok {
			vars["title"] = name
		}
	}
	return vars
}

// withVar returns a copy of vars with key set.
func withVar(vars templates.Vars, key string, value any) templates.Vars {
	out := make(templates.Vars, len(vars)+1)
	for k, v := range vars {
		out[k] = v
	}
	out[key] = value
	return out
}
