package audit_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetops/pkg/domain"
	audit "fleetops/pkg/platform/audit"
	"fleetops/pkg/platform/audit/store/memory"
	"fleetops/pkg/requestcontext"
)

type failingSink struct{}

func (failingSink) Emit(context.Context, audit.Event) error { return errors.New("sink down") }

func TestEnrich_FillsFromRequestContext(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	ctx = requestcontext.WithRequestID(ctx, "req-1")
	ctx = requestcontext.WithClientMetadata(ctx, "10.0.0.1", "Firefox 130 on Linux")

	event := audit.Enrich(ctx, audit.Event{Action: audit.EventAuthFailed})

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, now, event.Timestamp)
	assert.Equal(t, audit.CategorySecurity, event.Category)
	assert.Equal(t, audit.SeverityWarning, event.Severity)
	assert.Equal(t, "req-1", event.RequestID)
	assert.Equal(t, "10.0.0.1", event.ClientIP)
	assert.Equal(t, "Firefox 130 on Linux", event.UserAgent)
}

func TestEnrich_KeepsExplicitValues(t *testing.T) {
	event := audit.Enrich(context.Background(), audit.Event{
		ID:       "fixed",
		Action:   audit.EventTokenIssued,
		Severity: audit.SeverityCritical,
	})
	assert.Equal(t, "fixed", event.ID)
	assert.Equal(t, audit.CategoryOperations, event.Category)
	assert.Equal(t, audit.SeverityCritical, event.Severity)
}

func TestPublisher_FansOutDespiteFailures(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := audit.NewPublisher(failingSink{}, nil, store)

	err := pub.Emit(context.Background(), audit.Event{
		Action:    audit.EventCredentialRevoked,
		AccountID: domain.AccountID(42),
	})
	require.Error(t, err)

	events, err := store.ListByAccount(context.Background(), 42, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventCredentialRevoked, events[0].Action)
}

func TestLogSink_WritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	sink := audit.NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := sink.Emit(context.Background(), audit.Enrich(context.Background(), audit.Event{
		Action:    audit.EventAccessDenied,
		AccountID: domain.AccountID(7),
		Reason:    "location_mismatch",
	}))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"action":"access_denied"`)
	assert.Contains(t, out, `"account_id":"7"`)
	assert.Contains(t, out, `"level":"WARN"`)
}

func TestCategory_UnknownDefaultsToOperations(t *testing.T) {
	assert.Equal(t, audit.CategoryOperations, audit.AuditEvent("something_else").Category())
}
