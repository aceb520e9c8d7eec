package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/spec-kit/helpdesk-service/internal/config"
)

func sample(channel string) Notification {
	return Notification{
		ID:           "n-1",
		Channel:      channel,
		TenantID:     "acme",
		TicketID:     "t-1",
		TicketNumber: "HD-0001",
		Title:        "Printer on fire",
		Priority:     "high",
		Status:       "escalated",
		RuleID:       7,
		RuleName:     "page lead",
		Trigger:      "sla_breach",
		CreatedAt:    time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC),
	}
}

func TestWebhookSenderPostsJSON(t *testing.T) {
	var got Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := NewWebhookSender(srv.URL, time.Second)
	require.NoError(t, sender.Send(context.Background(), sample(ChannelWebhook)))
	assert.Equal(t, "HD-0001", got.TicketNumber)
	assert.Equal(t, int64(7), got.RuleID)
}

func TestWebhookSenderRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookSender(srv.URL, time.Second).Send(context.Background(), sample(ChannelWebhook))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	f.sent = append(f.sent, m...)
	return f.err
}

func TestEmailSenderBuildsMessage(t *testing.T) {
	d := &fakeDialer{}
	sender := &EmailSender{cfg: EmailConfig{From: "desk@acme.io", To: []string{"lead@acme.io"}}, dialer: d}

	require.NoError(t, sender.Send(context.Background(), sample(ChannelEmail)))
	require.Len(t, d.sent, 1)
	assert.Equal(t, []string{"lead@acme.io"}, d.sent[0].GetHeader("To"))
	assert.Contains(t, d.sent[0].GetHeader("Subject")[0], "HD-0001")
}

func TestEmailSenderWithoutRecipients(t *testing.T) {
	sender := &EmailSender{dialer: &fakeDialer{}}
	assert.Error(t, sender.Send(context.Background(), sample(ChannelEmail)))
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSenderKeysByTicket(t *testing.T) {
	w := &fakeWriter{}
	sender := &KafkaSender{writer: w}

	require.NoError(t, sender.Send(context.Background(), sample(ChannelKafka)))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "t-1", string(w.msgs[0].Key))

	router := NewRouter(sender)
	require.NoError(t, router.Close())
	assert.True(t, w.closed)
}

func TestRouterUnknownChannel(t *testing.T) {
	router := NewRouter(NewLogSender(zap.NewNop()))
	err := router.Send(context.Background(), sample("pager"))
	assert.True(t, errors.Is(err, ErrUnknownChannel))
	assert.NoError(t, router.Send(context.Background(), sample(ChannelLog)))
}

func TestFromConfigEnablesConfiguredChannels(t *testing.T) {
	router := FromConfig(config.NotificationConfig{
		WebhookURL:   "http://hooks.local",
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "helpdesk.escalations",
	}, zap.NewNop())
	assert.Equal(t, []string{ChannelKafka, ChannelLog, ChannelWebhook}, router.Channels())
}
