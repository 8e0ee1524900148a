// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package logger

import (
	"bytes"
	"encoding/json"
	"log"
	"os"
	"strings"
	"testing"
	"time"
)

// capture redirects the log package to a buffer and parses the single JSON
// entry the logged line carries.
func capture(t *testing.T, logFn func()) LogEntry {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	logFn()

	output := buf.String()
	jsonStart := strings.Index(output, "{")
	if jsonStart == -1 {
		t.Fatalf("no JSON found in log output: %s", output)
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(output[jsonStart:])), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nOutput: %s", err, output)
	}
	return entry
}

// assertField compares a logged field against its expected value, tolerating
// the float64 that JSON round-trips integers into.
func assertField(t *testing.T, entry LogEntry, key string, expected interface{}) {
	t.Helper()
	actual, ok := entry.Fields[key]
	if !ok {
		t.Errorf("expected field %q not found", key)
		return
	}
	if want, isInt := expected.(int); isInt {
		got, isFloat := actual.(float64)
		if !isFloat || int(got) != want {
			t.Errorf("field %q: expected %v, got %v", key, expected, actual)
		}
		return
	}
	if actual != expected {
		t.Errorf("field %q: expected %v, got %v", key, expected, actual)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name           string
		component      string
		instanceID     string
		expectedInstID string
	}{
		{
			name:           "with instance ID set",
			component:      "metering",
			instanceID:     "instance-123",
			expectedInstID: "instance-123",
		},
		{
			name:           "without instance ID",
			component:      "quota",
			instanceID:     "",
			expectedInstID: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.instanceID != "" {
				t.Setenv("INSTANCE_ID", tt.instanceID)
			} else {
				if err := os.Unsetenv("INSTANCE_ID"); err != nil {
					t.Fatalf("Failed to unset INSTANCE_ID: %v", err)
				}
			}

			logger := New(tt.component)

			if logger.Component != tt.component {
				t.Errorf("Expected component %s, got %s", tt.component, logger.Component)
			}
			if logger.InstanceID != tt.expectedInstID {
				t.Errorf("Expected instance ID %s, got %s", tt.expectedInstID, logger.InstanceID)
			}
			if logger.Container == "" {
				t.Error("Expected container to be set from hostname")
			}
		})
	}
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		name      string
		logFunc   func(*Logger, string, string, string, map[string]interface{})
		level     LogLevel
		message   string
		userID    string
		requestID string
		fields    map[string]interface{}
	}{
		{
			name:      "Info log",
			logFunc:   (*Logger).Info,
			level:     INFO,
			message:   "Invocation completed",
			userID:    "user-123",
			requestID: "req-456",
			fields: map[string]interface{}{
				"feature_key": "listing_description",
				"model":       "claude-sonnet-4",
				"cost":        0.0159,
			},
		},
		{
			name:      "Error log",
			logFunc:   (*Logger).Error,
			level:     ERROR,
			message:   "Usage record write failed",
			userID:    "user-789",
			requestID: "req-012",
			fields:    map[string]interface{}{"attempts": 3},
		},
		{
			name:      "Warn log",
			logFunc:   (*Logger).Warn,
			level:     WARN,
			message:   "Rate window check failed, failing open",
			userID:    "user-abc",
			requestID: "req-def",
			fields:    map[string]interface{}{"window": "hour"},
		},
		{
			name:      "Debug log",
			logFunc:   (*Logger).Debug,
			level:     DEBUG,
			message:   "Governance snapshot refreshed",
			userID:    "",
			requestID: "",
			fields:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New("metering")
			entry := capture(t, func() {
				tt.logFunc(logger, tt.userID, tt.requestID, tt.message, tt.fields)
			})

			if entry.Level != tt.level {
				t.Errorf("Expected level %s, got %s", tt.level, entry.Level)
			}
			if entry.Message != tt.message {
				t.Errorf("Expected message %q, got %q", tt.message, entry.Message)
			}
			if entry.UserID != tt.userID {
				t.Errorf("Expected user ID %q, got %q", tt.userID, entry.UserID)
			}
			if entry.RequestID != tt.requestID {
				t.Errorf("Expected request ID %q, got %q", tt.requestID, entry.RequestID)
			}
			if entry.Component != "metering" {
				t.Errorf("Expected component 'metering', got %q", entry.Component)
			}
			if _, err := time.Parse(time.RFC3339Nano, entry.Timestamp); err != nil {
				t.Errorf("Invalid timestamp format: %s", entry.Timestamp)
			}

			for key, expected := range tt.fields {
				assertField(t, entry, key, expected)
			}
		})
	}
}

func TestInfoWithDuration(t *testing.T) {
	logger := New("metering")
	entry := capture(t, func() {
		logger.InfoWithDuration("user-123", "req-456", "Invocation completed", 842.5, map[string]interface{}{
			"endpoint": "/api/v1/invoke",
		})
	})

	if entry.Level != INFO {
		t.Errorf("Expected INFO level, got %s", entry.Level)
	}
	assertField(t, entry, "duration_ms", 842.5)
	assertField(t, entry, "endpoint", "/api/v1/invoke")
}

func TestErrorWithCode(t *testing.T) {
	t.Run("with error", func(t *testing.T) {
		logger := New("metering")
		entry := capture(t, func() {
			logger.ErrorWithCode("user-123", "req-456", "Budget settlement failed", 500,
				&testError{msg: "database connection failed"},
				map[string]interface{}{"delta": -0.0154})
		})

		if entry.Level != ERROR {
			t.Errorf("Expected ERROR level, got %s", entry.Level)
		}
		assertField(t, entry, "status_code", 500)
		assertField(t, entry, "error", "database connection failed")
		assertField(t, entry, "delta", -0.0154)
	})

	t.Run("without error", func(t *testing.T) {
		logger := New("metering")
		entry := capture(t, func() {
			logger.ErrorWithCode("user-123", "req-456", "Feature not found", 404, nil, nil)
		})

		if entry.Level != ERROR {
			t.Errorf("Expected ERROR level, got %s", entry.Level)
		}
		assertField(t, entry, "status_code", 404)
		if _, ok := entry.Fields["error"]; ok {
			t.Error("nil error must not produce an error field")
		}
	})
}

// TestJSONMarshalError tests behavior when JSON marshaling fails
func TestJSONMarshalError(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	logger := New("metering")

	// channels cannot be marshaled to JSON
	logger.Info("user-123", "req-456", "Test message", map[string]interface{}{
		"channel": make(chan int),
	})

	if !strings.Contains(buf.String(), "Failed to marshal log entry") {
		t.Error("Expected error message about JSON marshaling failure")
	}
}

// Helper type for testing errors
type testError struct {
	msg string
}

func (e *testError) Error() string {
	return e.msg
}

// BenchmarkLog benchmarks the logging performance
func BenchmarkLog(b *testing.B) {
	logger := New("benchmark-component")
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	fields := map[string]interface{}{
		"feature_key": "listing_description",
		"model":       "claude-sonnet-4",
		"duration":    45.67,
		"success":     true,
		"cost":        0.0159,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("user-123", "req-456", "Processing invocation", fields)
	}
}

// BenchmarkLogWithoutFields benchmarks logging without extra fields
func BenchmarkLogWithoutFields(b *testing.B) {
	logger := New("benchmark-component")
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("user-123", "req-456", "Simple log message", nil)
	}
}
