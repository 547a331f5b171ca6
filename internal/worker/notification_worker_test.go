package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

func TestNotificationWorkerLogsTicketEvents(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	dispatcher := events.NewInMemoryDispatcher()

	svc := service.NewNotificationService(dispatcher, logger, config.NotificationConfig{
		EmailFrom:  "noreply@example.com",
		WebhookURL: "https://hooks.example.com/helpdesk",
	})
	StartNotificationWorker(svc, logger)
	registered := logs.FilterMessage("notification handlers registered").All()
	require.Len(t, registered, 1)
	assert.Len(t, registered[0].ContextMap()["events"], 5)

	ticket := &domain.Ticket{ID: "t-1", TicketNumber: "TKT-ABC-0001"}
	actor := events.Actor{UserID: "u-1", Role: domain.RoleSupportAgent}
	now := time.Now().UTC()

	require.NoError(t, dispatcher.Publish(context.Background(), events.NewTicketEvent(events.EventTicketCreated, ticket, actor, now, nil)))
	require.NoError(t, dispatcher.Publish(context.Background(), events.NewTicketEvent(events.EventTicketDeleted, ticket, actor, now, nil)))

	assert.Equal(t, 1, logs.FilterMessage("TicketCreated").Len())
	assert.Equal(t, 1, logs.FilterMessage("TicketDeleted").Len())
	assert.Equal(t, 2, logs.FilterMessage("sendWebhookNotificationStub").Len())
	assert.Equal(t, 1, logs.FilterMessage("sendEmailNotificationStub").Len())
}

func TestNotificationWorkerNilService(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	StartNotificationWorker(nil, zap.New(core))
	assert.Zero(t, logs.Len())
}
