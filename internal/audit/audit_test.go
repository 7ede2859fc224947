package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(f float64) *float64 { return &f }

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	return entry
}

func TestSlogLogger_Log(t *testing.T) {
	tests := []struct {
		name          string
		event         Event
		wantEventType string
		wantSuccess   bool
		wantErrorCode string
	}{
		{
			name: "successful enrollment",
			event: Event{
				EventType:  EventEnrollment,
				RequestID:  "req-1",
				IdentityID: 7,
				Success:    true,
			},
			wantEventType: string(EventEnrollment),
			wantSuccess:   true,
		},
		{
			name: "enrollment rejected for duplicate email",
			event: Event{
				EventType: EventEnrollment,
				Success:   false,
				ErrorCode: "DUPLICATE_EMAIL",
			},
			wantEventType: string(EventEnrollment),
			wantErrorCode: "DUPLICATE_EMAIL",
		},
		{
			name: "recognition match",
			event: Event{
				EventType:  EventRecognition,
				IdentityID: 3,
				Success:    true,
				Distance:   floatPtr(0.21),
				IPAddress:  "192.168.1.1",
				UserAgent:  "Mozilla/5.0",
			},
			wantEventType: string(EventRecognition),
			wantSuccess:   true,
		},
		{
			name: "recognition without match",
			event: Event{
				EventType: EventRecognition,
				ErrorCode: "NO_MATCH_FOUND",
			},
			wantEventType: string(EventRecognition),
			wantErrorCode: "NO_MATCH_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			auditLogger := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

			require.NoError(t, auditLogger.Log(context.Background(), tt.event))

			entry := decodeLine(t, &buf)
			assert.Equal(t, "audit_event", entry["msg"])
			assert.Equal(t, "audit", entry["component"])
			assert.Equal(t, tt.wantEventType, entry["event_type"])
			assert.Equal(t, tt.wantSuccess, entry["success"])
			if tt.wantErrorCode != "" {
				assert.Equal(t, tt.wantErrorCode, entry["error_code"])
			} else {
				assert.NotContains(t, entry, "error_code")
			}
			if tt.event.RequestID != "" {
				assert.Equal(t, tt.event.RequestID, entry["request_id"])
			}
		})
	}
}

func TestSlogLogger_Log_GeneratesIDAndTimestamp(t *testing.T) {
	var buf bytes.Buffer
	auditLogger := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	fixed := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	auditLogger.now = func() time.Time { return fixed }

	err := auditLogger.Log(context.Background(), Event{EventType: EventEnrollment, Success: true})
	require.NoError(t, err)

	entry := decodeLine(t, &buf)
	eventID, ok := entry["event_id"].(string)
	require.True(t, ok)
	_, err = uuid.Parse(eventID)
	assert.NoError(t, err)

	var data Event
	require.NoError(t, json.Unmarshal([]byte(entry["event_data"].(string)), &data))
	assert.True(t, fixed.Equal(data.Timestamp))
	assert.Equal(t, eventID, data.ID.String())
}

func TestSlogLogger_Log_UsesProvidedID(t *testing.T) {
	var buf bytes.Buffer
	auditLogger := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	expectedID := uuid.New()

	err := auditLogger.Log(context.Background(), Event{
		ID:        expectedID,
		Timestamp: time.Now(),
		EventType: EventRecognition,
	})
	require.NoError(t, err)

	entry := decodeLine(t, &buf)
	assert.Equal(t, expectedID.String(), entry["event_id"])
}

func TestNoOpLogger_Log(t *testing.T) {
	logger := &NoOpLogger{}

	for i := 0; i < 10; i++ {
		assert.NoError(t, logger.Log(context.Background(), Event{EventType: EventRecognition}))
	}
}

func TestLoggerInterface_Compliance(t *testing.T) {
	var _ Logger = (*SlogLogger)(nil)
	var _ Logger = (*NoOpLogger)(nil)
}

func TestEvent_JSONSerialization_OmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(Event{EventType: EventEnrollment, Success: true})
	require.NoError(t, err)

	jsonStr := string(data)
	assert.NotContains(t, jsonStr, "request_id")
	assert.NotContains(t, jsonStr, "identity_id")
	assert.NotContains(t, jsonStr, "error_code")
	assert.NotContains(t, jsonStr, "distance")
	assert.NotContains(t, jsonStr, "ip_address")
	assert.NotContains(t, jsonStr, "user_agent")
}
