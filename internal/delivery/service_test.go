package delivery_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/journalmate/internal/clock"
	"github.com/nhle/journalmate/internal/delivery"
	"github.com/nhle/journalmate/internal/metrics"
	"github.com/nhle/journalmate/internal/model"
	"github.com/nhle/journalmate/internal/push"
	"github.com/nhle/journalmate/internal/realtime"
	"github.com/nhle/journalmate/internal/store"
	storetest "github.com/nhle/journalmate/tests/testutil"
)

type fakeLive struct {
	events []realtime.Event
	err    error
}

func (f *fakeLive) Publish(_ context.Context, _ string, e realtime.Event) (int64, error) {
	f.events = append(f.events, e)
	return 1, f.err
}

type fakePush struct {
	sent []string
	msgs []push.Message
	errs map[string]error
}

func (f *fakePush) Send(_ context.Context, token string, msg push.Message) error {
	f.sent = append(f.sent, token)
	f.msgs = append(f.msgs, msg)
	return f.errs[token]
}

type failingInbox struct {
	*store.SQLiteStore
}

func (failingInbox) CreateUserNotification(context.Context, model.UserNotification) error {
	return errors.New("disk full")
}

var now = time.Date(2025, 8, 25, 9, 0, 0, 0, time.UTC)

func payload() delivery.Payload {
	return delivery.Payload{
		Title: "Paris Trip is in 1 week",
		Body:  "Start planning!",
		Type:  "activity_starts_10080",
		Route: "/activities/a1",
		Metadata: map[string]any{
			model.MetaHaptic:      "light",
			model.MetaChannel:     "activity-reminders",
			model.MetaPriority:    "default",
			model.MetaLeadMinutes: float64(10080),
		},
	}
}

func registerTokens(t *testing.T, st *store.SQLiteStore, tokens ...string) {
	t.Helper()
	for _, tok := range tokens {
		require.NoError(t, st.RegisterDeviceToken(context.Background(), model.DeviceToken{
			UserID: "u1", Token: tok, Platform: "ios",
		}))
	}
}

func newService(st delivery.Store, live *fakeLive, p *fakePush, m *metrics.Metrics) *delivery.Service {
	logger, _ := logtest.NewNullLogger()
	return delivery.NewService(st,
		delivery.WithLivePublisher(live),
		delivery.WithPushSender(p),
		delivery.WithClock(clock.NewFixed(now)),
		delivery.WithLogger(logger),
		delivery.WithMetrics(m),
	)
}

func TestSendUserNotification_AllLegs(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewTestStore(t)
	registerTokens(t, st, "tok-a", "tok-b")
	live := &fakeLive{}
	p := &fakePush{}

	require.NoError(t, newService(st, live, p, nil).SendUserNotification(ctx, "u1", payload()))

	inbox, err := st.GetUserNotifications(ctx, "u1", true)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "Paris Trip is in 1 week", inbox[0].Title)
	assert.Equal(t, "/activities/a1", inbox[0].Route)

	require.Len(t, live.events, 1)
	assert.Equal(t, inbox[0].ID, live.events[0].ID)
	assert.True(t, now.Equal(live.events[0].CreatedAt))

	assert.ElementsMatch(t, []string{"tok-a", "tok-b"}, p.sent)
	msg := p.msgs[0]
	assert.Equal(t, "activity-reminders", msg.Channel)
	assert.Equal(t, "light", msg.Haptic)
	assert.Equal(t, "/activities/a1", msg.Data["route"])
	assert.Equal(t, "10080", msg.Data[model.MetaLeadMinutes])
	assert.Equal(t, inbox[0].ID, msg.Data["notificationId"])
}

func TestSendUserNotification_BrowserNotificationsDisabled(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewTestStore(t)
	registerTokens(t, st, "tok-a")
	prefs := model.DefaultPreferences("u1")
	prefs.EnableBrowserNotifications = false
	require.NoError(t, st.UpsertNotificationPreferences(ctx, prefs))
	live := &fakeLive{}
	p := &fakePush{}

	require.NoError(t, newService(st, live, p, nil).SendUserNotification(ctx, "u1", payload()))

	inbox, err := st.GetUserNotifications(ctx, "u1", false)
	require.NoError(t, err)
	assert.Len(t, inbox, 1)
	assert.Len(t, live.events, 1)
	assert.Empty(t, p.sent)
}

func TestSendUserNotification_LiveFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewTestStore(t)
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	live := &fakeLive{err: errors.New("redis down")}

	require.NoError(t, newService(st, live, &fakePush{}, m).SendUserNotification(ctx, "u1", payload()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveryFailures.WithLabelValues(metrics.LegLive)))
}

func TestSendUserNotification_InAppFailureIsFatal(t *testing.T) {
	st := storetest.NewTestStore(t)
	live := &fakeLive{}

	err := newService(failingInbox{st}, live, &fakePush{}, nil).SendUserNotification(context.Background(), "u1", payload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, live.events)
}

func TestSendUserNotification_PartialPushFailure(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewTestStore(t)
	registerTokens(t, st, "tok-a", "tok-b")
	p := &fakePush{errs: map[string]error{"tok-a": errors.New("gateway timeout")}}

	require.NoError(t, newService(st, &fakeLive{}, p, nil).SendUserNotification(ctx, "u1", payload()))
	assert.Len(t, p.sent, 2)
}

func TestSendUserNotification_PushFailuresAreNotFatal(t *testing.T) {
	tests := []struct {
		name        string
		errs        map[string]error
		wantTokens  []string
		wantFailed  float64
		wantWarning bool
	}{
		{
			name: "every live device fails",
			errs: map[string]error{
				"tok-a": errors.New("gateway timeout"),
				"tok-b": push.ErrInvalidToken,
			},
			wantTokens:  []string{"tok-a"},
			wantFailed:  1,
			wantWarning: true,
		},
		{
			name: "only dead tokens",
			errs: map[string]error{
				"tok-a": push.ErrInvalidToken,
				"tok-b": push.ErrInvalidToken,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := storetest.NewTestStore(t)
			registerTokens(t, st, "tok-a", "tok-b")
			m := metrics.NewMetrics(prometheus.NewRegistry())
			logger, hook := logtest.NewNullLogger()
			svc := delivery.NewService(st,
				delivery.WithPushSender(&fakePush{errs: tt.errs}),
				delivery.WithClock(clock.NewFixed(now)),
				delivery.WithLogger(logger),
				delivery.WithMetrics(m),
			)

			require.NoError(t, svc.SendUserNotification(ctx, "u1", payload()))

			inbox, err := st.GetUserNotifications(ctx, "u1", false)
			require.NoError(t, err)
			assert.Len(t, inbox, 1)

			tokens, err := st.GetDeviceTokens(ctx, "u1")
			require.NoError(t, err)
			var got []string
			for _, tok := range tokens {
				got = append(got, tok.Token)
			}
			assert.Equal(t, tt.wantTokens, got)
			assert.Equal(t, tt.wantFailed, testutil.ToFloat64(m.DeliveryFailures.WithLabelValues(metrics.LegPush)))

			warned := false
			for _, e := range hook.AllEntries() {
				if e.Message == "push failed for every device" {
					warned = true
				}
			}
			assert.Equal(t, tt.wantWarning, warned)
		})
	}
}

func TestSendUserNotification_NoLegsConfigured(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewTestStore(t)
	svc := delivery.NewService(st)

	require.NoError(t, svc.SendUserNotification(ctx, "u1", payload()))
	inbox, err := st.GetUserNotifications(ctx, "u1", false)
	require.NoError(t, err)
	assert.Len(t, inbox, 1)
}
