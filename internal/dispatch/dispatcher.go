// Package dispatch polls for due scheduled notifications and hands them
// to the delivery service, recording the outcome of every attempt.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/journalmate/internal/clock"
	"github.com/nhle/journalmate/internal/delivery"
	"github.com/nhle/journalmate/internal/logger"
	"github.com/nhle/journalmate/internal/metrics"
	"github.com/nhle/journalmate/internal/model"
	"github.com/nhle/journalmate/internal/store"
)

// ErrCycleInProgress is returned when a dispatch cycle is requested while
// another one still holds the busy flag.
var ErrCycleInProgress = errors.New("dispatch cycle already in progress")

const (
	// DefaultInterval is the poll period used when none is configured.
	DefaultInterval = 5 * time.Minute

	// cycleTimeout bounds a single dispatch cycle started by the loop.
	cycleTimeout = 2 * time.Minute
)

// Outcome is what happened to one row during dispatch.
type Outcome string

const (
	OutcomeSent     Outcome = "sent"
	OutcomeFailed   Outcome = "failed"
	OutcomeDeferred Outcome = "deferred"
	OutcomeSkipped  Outcome = "skipped"
)

// Store is the persistence the dispatcher needs.
type Store interface {
	GetPendingSmartNotifications(ctx context.Context, now time.Time) ([]model.ScheduledNotification, error)
	GetSmartNotification(ctx context.Context, id string) (*model.ScheduledNotification, error)
	UpdateSmartNotification(ctx context.Context, id string, patch model.NotificationPatch) (bool, error)
	CreateNotificationHistory(ctx context.Context, h model.NotificationHistory) error
	GetNotificationPreferences(ctx context.Context, userID string) (*model.NotificationPreferences, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
}

// Sender is the delivery port.
type Sender interface {
	SendUserNotification(ctx context.Context, userID string, p delivery.Payload) error
}

// Result summarises one dispatch cycle.
type Result struct {
	Fetched  int
	Sent     int
	Failed   int
	Deferred int
	Skipped  int
}

func (r *Result) add(o Outcome) {
	switch o {
	case OutcomeSent:
		r.Sent++
	case OutcomeFailed:
		r.Failed++
	case OutcomeDeferred:
		r.Deferred++
	default:
		r.Skipped++
	}
}

// State is the dispatcher loop state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateError
)

// Status describes the most recent cycle.
type Status struct {
	State     State
	LastCycle time.Time
	Last      Result
	Error     error
}

// Dispatcher delivers due notifications. Only one cycle runs at a time.
type Dispatcher struct {
	store           Store
	sender          Sender
	clock           clock.Clock
	log             logrus.FieldLogger
	metrics         *metrics.Metrics
	interval        time.Duration
	defaultTimezone string
	onSent          func(ctx context.Context, n model.ScheduledNotification)

	mu        gosync.Mutex
	busy      bool
	running   bool
	status    Status
	stopCh    chan struct{}
	doneCh    chan struct{}
	triggerCh chan struct{}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock sets the clock used for "now".
func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithInterval sets the poll period of the loop started by Start.
func WithInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

// WithDefaultTimezone sets the zone used for quiet hours when neither the
// user, the preferences, nor the row name one.
func WithDefaultTimezone(name string) Option {
	return func(d *Dispatcher) { d.defaultTimezone = name }
}

// WithOnSent registers a callback invoked after a row is marked sent.
func WithOnSent(fn func(ctx context.Context, n model.ScheduledNotification)) Option {
	return func(d *Dispatcher) { d.onSent = fn }
}

// New creates a Dispatcher that delivers through sender.
func New(st Store, sender Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:     st,
		sender:    sender,
		clock:     clock.NewReal(),
		log:       logrus.StandardLogger(),
		interval:  DefaultInterval,
		triggerCh: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// recipient is the per-user context loaded once per cycle.
type recipient struct {
	prefs *model.NotificationPreferences
	loc   *time.Location
}

// ProcessScheduledNotifications delivers every pending row that is due.
// Rows inside the user's quiet hours stay pending for a later cycle. A
// failing row never stops the others.
func (d *Dispatcher) ProcessScheduledNotifications(ctx context.Context) (Result, error) {
	if !d.acquire() {
		return Result{}, ErrCycleInProgress
	}
	defer d.release()

	started := time.Now()
	defer func() { d.metrics.ObserveCycle(time.Since(started)) }()

	now := d.clock.Now()
	rows, err := d.store.GetPendingSmartNotifications(ctx, now)
	if err != nil {
		return Result{}, fmt.Errorf("fetching due notifications: %w", err)
	}

	res := Result{Fetched: len(rows)}
	users := make(map[string]*recipient)
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.add(d.processRow(ctx, row, now, users))
	}
	return res, nil
}

// DispatchNow delivers a single row immediately, applying quiet hours.
// When a cycle is in progress the row is left pending for the next one.
func (d *Dispatcher) DispatchNow(ctx context.Context, n model.ScheduledNotification) (Outcome, error) {
	if !d.acquire() {
		d.log.WithFields(logger.NotificationFields(n)).Debug("cycle in progress, leaving row for next poll")
		return OutcomeDeferred, nil
	}
	defer d.release()

	return d.processRow(ctx, n, d.clock.Now(), make(map[string]*recipient)), nil
}

func (d *Dispatcher) processRow(
	ctx context.Context,
	row model.ScheduledNotification,
	now time.Time,
	users map[string]*recipient,
) Outcome {
	log := d.log.WithFields(logger.NotificationFields(row))

	outcome := func() Outcome {
		rcpt, err := d.recipientFor(ctx, row, users)
		if err != nil {
			log.WithError(err).Error("loading recipient")
			return OutcomeSkipped
		}
		if InQuietHours(now, rcpt.loc, rcpt.prefs.QuietHoursStart, rcpt.prefs.QuietHoursEnd) {
			log.Debug("inside quiet hours, deferring")
			return OutcomeDeferred
		}

		current, err := d.store.GetSmartNotification(ctx, row.ID)
		if err != nil {
			log.WithError(err).Error("re-reading notification")
			return OutcomeSkipped
		}
		if current.Status != model.StatusPending {
			log.WithField("status", current.Status).Debug("no longer pending")
			return OutcomeSkipped
		}

		return d.deliver(ctx, log, *current, now)
	}()

	d.metrics.IncDispatched(string(outcome))
	return outcome
}

func (d *Dispatcher) deliver(
	ctx context.Context,
	log logrus.FieldLogger,
	n model.ScheduledNotification,
	now time.Time,
) Outcome {
	sentAt := now.UTC()
	history := model.NotificationHistory{
		UserID:                  n.UserID,
		ScheduledNotificationID: n.ID,
		NotificationType:        n.NotificationType,
		Title:                   n.Title,
		Body:                    n.Body,
		Route:                   n.Route,
		Channel:                 n.MetaString(model.MetaChannel),
		HapticType:              n.MetaString(model.MetaHaptic),
		SentAt:                  sentAt,
	}

	outcome := OutcomeSent
	patch := model.NotificationPatch{Status: model.StatusSent, SentAt: &sentAt}
	if err := d.sender.SendUserNotification(ctx, n.UserID, payloadFor(n)); err != nil {
		log.WithError(err).Error("delivering notification")
		outcome = OutcomeFailed
		patch = model.NotificationPatch{Status: model.StatusFailed, FailureReason: err.Error()}
		history.FailureReason = err.Error()
	}
	history.Status = patch.Status

	updated, err := d.store.UpdateSmartNotification(ctx, n.ID, patch)
	if err != nil {
		log.WithError(err).Errorf("marking notification %s", patch.Status)
	} else if !updated {
		log.Debug("row left pending state during delivery")
	}

	if err := d.store.CreateNotificationHistory(ctx, history); err != nil {
		log.WithError(err).Error("recording notification history")
	}

	if outcome == OutcomeSent {
		log.Info("notification sent")
		if updated && d.onSent != nil {
			n.Status = model.StatusSent
			n.SentAt = &sentAt
			d.onSent(ctx, n)
		}
	}
	return outcome
}

func (d *Dispatcher) recipientFor(
	ctx context.Context,
	row model.ScheduledNotification,
	users map[string]*recipient,
) (*recipient, error) {
	if r, ok := users[row.UserID]; ok {
		return r, nil
	}

	prefs, err := d.store.GetNotificationPreferences(ctx, row.UserID)
	if err != nil {
		return nil, fmt.Errorf("loading preferences: %w", err)
	}

	var userTZ string
	user, err := d.store.GetUser(ctx, row.UserID)
	switch {
	case err == nil:
		userTZ = user.Timezone
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("loading user: %w", err)
	}

	r := &recipient{
		prefs: prefs,
		loc:   clock.ResolveLocation(userTZ, prefs.Timezone, row.Timezone, d.defaultTimezone),
	}
	users[row.UserID] = r
	return r, nil
}

// payloadFor builds the delivery payload, tagging the metadata with the
// row's identity so clients can correlate it.
func payloadFor(n model.ScheduledNotification) delivery.Payload {
	meta := make(map[string]any, len(n.Metadata)+3)
	for k, v := range n.Metadata {
		meta[k] = v
	}
	meta["scheduledNotificationId"] = n.ID
	meta["sourceType"] = string(n.SourceType)
	meta["sourceId"] = n.SourceID

	return delivery.Payload{
		Title:    n.Title,
		Body:     n.Body,
		Type:     n.NotificationType,
		Route:    n.Route,
		Metadata: meta,
	}
}

func (d *Dispatcher) acquire() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.busy {
		return false
	}
	d.busy = true
	return true
}

func (d *Dispatcher) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy = false
}

// Start launches the poll loop. It runs one cycle immediately and then
// every interval until Stop is called or ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})

	go d.loop(ctx, d.stopCh, d.doneCh)
}

// Stop halts the poll loop and waits for an in-flight cycle to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	close(d.stopCh)
	d.running = false
	done := d.doneCh
	d.mu.Unlock()

	<-done
}

// Running reports whether the poll loop is active.
func (d *Dispatcher) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Trigger requests an immediate cycle from the running loop.
func (d *Dispatcher) Trigger() {
	select {
	case d.triggerCh <- struct{}{}:
	default:
		// A cycle is already queued.
	}
}

// Status returns the state of the most recent cycle.
func (d *Dispatcher) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *Dispatcher) loop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			d.mu.Lock()
			d.running = false
			d.mu.Unlock()
			return
		case <-stopCh:
			return
		case <-ticker.C:
			d.runCycle(ctx)
		case <-d.triggerCh:
			d.runCycle(ctx)
		}
	}
}

func (d *Dispatcher) runCycle(ctx context.Context) {
	d.setStatus(StateRunning, Result{}, nil)

	cctx, cancel := context.WithTimeout(ctx, cycleTimeout)
	defer cancel()

	res, err := d.ProcessScheduledNotifications(cctx)
	if errors.Is(err, ErrCycleInProgress) {
		d.log.Debug("previous cycle still running")
		return
	}
	if err != nil {
		d.log.WithError(err).Error("dispatch cycle failed")
		d.setStatus(StateError, res, err)
		return
	}

	entry := d.log.WithFields(logrus.Fields{
		"fetched":  res.Fetched,
		"sent":     res.Sent,
		"failed":   res.Failed,
		"deferred": res.Deferred,
		"skipped":  res.Skipped,
	})
	if res.Fetched > 0 {
		entry.Info("dispatch cycle complete")
	} else {
		entry.Debug("dispatch cycle complete")
	}
	d.setStatus(StateIdle, res, nil)
}

func (d *Dispatcher) setStatus(state State, res Result, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.status.State = state
	d.status.Error = err
	if state != StateRunning {
		d.status.Last = res
		d.status.LastCycle = d.clock.Now()
	}
}
