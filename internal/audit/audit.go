// Package audit records a persistent trail of kernel activity: run
// starts and stops, signal lifecycle transitions, risk rejections, and
// configuration changes. Events are logged structurally for immediate
// visibility and, when a database pool is attached, persisted to the
// audit_logs table for later querying.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/ordinalkernel/tradekernel/internal/metrics"
)

// EventType represents the type of audit event
type EventType string

const (
	// Run control events
	EventTypeRunStarted  EventType = "RUN_STARTED"
	EventTypeRunStopped  EventType = "RUN_STOPPED"
	EventTypeRunFailed   EventType = "RUN_FAILED"
	EventTypeRunFinished EventType = "RUN_FINISHED"

	// Signal lifecycle events
	EventTypeSignalScheduled EventType = "SIGNAL_SCHEDULED"
	EventTypeSignalOpened    EventType = "SIGNAL_OPENED"
	EventTypeSignalClosed    EventType = "SIGNAL_CLOSED"
	EventTypeSignalCancelled EventType = "SIGNAL_CANCELLED"

	// Risk events
	EventTypeRiskRejected EventType = "RISK_REJECTED"

	// Configuration events
	EventTypeConfigUpdated EventType = "CONFIG_UPDATED"
	EventTypeConfigViewed  EventType = "CONFIG_VIEWED"

	// Strategy document events
	EventTypeStrategyImported EventType = "STRATEGY_IMPORTED"
	EventTypeStrategyExported EventType = "STRATEGY_EXPORTED"

	// Security events
	EventTypeRateLimitExceeded  EventType = "RATE_LIMIT_EXCEEDED"
	EventTypeUnauthorizedAccess EventType = "UNAUTHORIZED_ACCESS"
	EventTypeInvalidInput       EventType = "INVALID_INPUT"
)

// Severity represents the severity level of an audit event
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Event represents a single audit log event. UserID carries the acting
// identity, "strategy:<name>" for kernel-originated events or an
// operator id for configuration changes.
type Event struct {
	ID        uuid.UUID              `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	EventType EventType              `json:"event_type"`
	Severity  Severity               `json:"severity"`
	UserID    string                 `json:"user_id,omitempty"`
	IPAddress string                 `json:"ip_address"`
	UserAgent string                 `json:"user_agent,omitempty"`
	Resource  string                 `json:"resource,omitempty"`      // affected resource (signal id, symbol, config key)
	Action    string                 `json:"action"`                  // human-readable description
	Success   bool                   `json:"success"`
	ErrorMsg  string                 `json:"error_message,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Duration  int64                  `json:"duration_ms,omitempty"`
}

// Logger handles audit logging operations
type Logger struct {
	db      *pgxpool.Pool
	enabled bool
}

// NewLogger creates a new audit logger. A nil pool disables persistence
// but keeps the structured-log side.
func NewLogger(db *pgxpool.Pool, enabled bool) *Logger {
	return &Logger{
		db:      db,
		enabled: enabled,
	}
}

// Log records an audit event
func (l *Logger) Log(ctx context.Context, event *Event) error {
	if !l.enabled {
		return nil
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	logEvent := log.With().
		Str("event_id", event.ID.String()).
		Str("event_type", string(event.EventType)).
		Str("severity", string(event.Severity)).
		Str("user_id", event.UserID).
		Str("resource", event.Resource).
		Str("action", event.Action).
		Bool("success", event.Success).
		Logger()

	if event.ErrorMsg != "" {
		logEvent = logEvent.With().Str("error", event.ErrorMsg).Logger()
	}

	switch event.Severity {
	case SeverityCritical, SeverityError:
		logEvent.Error().Msg("audit event")
	case SeverityWarning:
		logEvent.Warn().Msg("audit event")
	default:
		logEvent.Info().Msg("audit event")
	}

	if l.db != nil {
		if err := l.persistEvent(ctx, event); err != nil {
			metrics.RecordAuditLog(string(event.EventType), false)
			metrics.RecordAuditLogFailure("persist_error", string(event.EventType))
			return err
		}
	}

	metrics.RecordAuditLog(string(event.EventType), true)
	return nil
}

// persistEvent stores the audit event in the database
func (l *Logger) persistEvent(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO audit_logs (
			id, timestamp, event_type, severity, user_id, ip_address,
			user_agent, resource, action, success, error_message,
			metadata, request_id, duration_ms
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`

	var metadataJSON []byte
	var err error
	if event.Metadata != nil {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			log.Error().Err(err).Msg("failed to marshal audit event metadata")
			metadataJSON = []byte("{}")
		}
	}

	_, err = l.db.Exec(ctx, query,
		event.ID,
		event.Timestamp,
		event.EventType,
		event.Severity,
		event.UserID,
		event.IPAddress,
		event.UserAgent,
		event.Resource,
		event.Action,
		event.Success,
		event.ErrorMsg,
		metadataJSON,
		event.RequestID,
		event.Duration,
	)
	if err != nil {
		log.Error().Err(err).
			Str("event_id", event.ID.String()).
			Str("event_type", string(event.EventType)).
			Msg("failed to persist audit event")
		return err
	}

	return nil
}

// Query retrieves audit events based on filters
func (l *Logger) Query(ctx context.Context, filters *QueryFilters) ([]Event, error) {
	if l.db == nil {
		return nil, nil
	}

	query := `
		SELECT
			id, timestamp, event_type, severity, user_id, ip_address,
			user_agent, resource, action, success, error_message,
			metadata, request_id, duration_ms
		FROM audit_logs
		WHERE 1=1
	`

	args := []interface{}{}
	argPos := 1

	addFilter := func(clause string, value interface{}) {
		query += fmt.Sprintf(" AND %s = $%d", clause, argPos)
		args = append(args, value)
		argPos++
	}

	if filters.EventType != "" {
		addFilter("event_type", filters.EventType)
	}
	if filters.UserID != "" {
		addFilter("user_id", filters.UserID)
	}
	if filters.IPAddress != "" {
		addFilter("ip_address", filters.IPAddress)
	}
	if !filters.StartTime.IsZero() {
		query += fmt.Sprintf(" AND timestamp >= $%d", argPos)
		args = append(args, filters.StartTime)
		argPos++
	}
	if !filters.EndTime.IsZero() {
		query += fmt.Sprintf(" AND timestamp <= $%d", argPos)
		args = append(args, filters.EndTime)
		argPos++
	}
	if filters.Success != nil {
		addFilter("success", *filters.Success)
	}

	query += ` ORDER BY timestamp DESC`

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, filters.Limit)
	}

	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var event Event
		var metadataJSON []byte

		err := rows.Scan(
			&event.ID,
			&event.Timestamp,
			&event.EventType,
			&event.Severity,
			&event.UserID,
			&event.IPAddress,
			&event.UserAgent,
			&event.Resource,
			&event.Action,
			&event.Success,
			&event.ErrorMsg,
			&metadataJSON,
			&event.RequestID,
			&event.Duration,
		)
		if err != nil {
			return nil, err
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				log.Warn().Err(err).Msg("failed to unmarshal audit event metadata")
			}
		}

		events = append(events, event)
	}

	return events, rows.Err()
}

// QueryFilters defines filters for querying audit events
type QueryFilters struct {
	EventType EventType
	UserID    string
	IPAddress string
	StartTime time.Time
	EndTime   time.Time
	Success   *bool
	Limit     int
}

// LogRunEvent records a run control event (live/backtest start, stop,
// failure). symbol goes into Resource.
func (l *Logger) LogRunEvent(ctx context.Context, eventType EventType, actor, ipAddress, symbol string, success bool, errorMsg string) error {
	severity := SeverityInfo
	if !success || eventType == EventTypeRunFailed {
		severity = SeverityError
	}
	return l.Log(ctx, &Event{
		EventType: eventType,
		Severity:  severity,
		UserID:    actor,
		IPAddress: ipAddress,
		Resource:  symbol,
		Action:    runAction(eventType),
		Success:   success,
		ErrorMsg:  errorMsg,
	})
}

func runAction(eventType EventType) string {
	switch eventType {
	case EventTypeRunStarted:
		return "run started"
	case EventTypeRunStopped:
		return "run stopped"
	case EventTypeRunFailed:
		return "run failed"
	case EventTypeRunFinished:
		return "run finished"
	default:
		return string(eventType)
	}
}

// LogSignalEvent records a signal lifecycle transition. signalID goes
// into Resource; metadata typically carries position, prices and PnL.
func (l *Logger) LogSignalEvent(ctx context.Context, eventType EventType, actor, ipAddress, signalID string, metadata map[string]interface{}, success bool, errorMsg string) error {
	severity := SeverityInfo
	if !success {
		severity = SeverityError
	}
	return l.Log(ctx, &Event{
		EventType: eventType,
		Severity:  severity,
		UserID:    actor,
		IPAddress: ipAddress,
		Resource:  signalID,
		Action:    signalAction(eventType),
		Success:   success,
		ErrorMsg:  errorMsg,
		Metadata:  metadata,
	})
}

func signalAction(eventType EventType) string {
	switch eventType {
	case EventTypeSignalScheduled:
		return "signal scheduled"
	case EventTypeSignalOpened:
		return "signal opened"
	case EventTypeSignalClosed:
		return "signal closed"
	case EventTypeSignalCancelled:
		return "signal cancelled"
	default:
		return string(eventType)
	}
}

// LogRiskRejection records a risk validator rejection.
func (l *Logger) LogRiskRejection(ctx context.Context, actor, ipAddress, symbol, note string, metadata map[string]interface{}) error {
	return l.Log(ctx, &Event{
		EventType: EventTypeRiskRejected,
		Severity:  SeverityWarning,
		UserID:    actor,
		IPAddress: ipAddress,
		Resource:  symbol,
		Action:    "signal rejected by risk validator",
		Success:   false,
		ErrorMsg:  note,
		Metadata:  metadata,
	})
}

// LogSecurityEvent records a security-relevant event (rate limits,
// unexpected access, malformed input).
func (l *Logger) LogSecurityEvent(ctx context.Context, eventType EventType, actor, ipAddress, resource, action string, metadata map[string]interface{}) error {
	return l.Log(ctx, &Event{
		EventType: eventType,
		Severity:  SeverityWarning,
		UserID:    actor,
		IPAddress: ipAddress,
		Resource:  resource,
		Action:    action,
		Success:   false,
		Metadata:  metadata,
	})
}

// LogConfigChange records a configuration change with old and new values.
func (l *Logger) LogConfigChange(ctx context.Context, actor, ipAddress, configKey string, oldValue, newValue interface{}, success bool, errorMsg string) error {
	return l.Log(ctx, &Event{
		EventType: EventTypeConfigUpdated,
		Severity:  SeverityInfo,
		UserID:    actor,
		IPAddress: ipAddress,
		Resource:  configKey,
		Action:    "configuration updated",
		Success:   success,
		ErrorMsg:  errorMsg,
		Metadata: map[string]interface{}{
			"config_key": configKey,
			"old_value":  oldValue,
			"new_value":  newValue,
		},
	})
}

// LogStrategyChange records a strategy document import or export.
func (l *Logger) LogStrategyChange(ctx context.Context, eventType EventType, actor, ipAddress, strategyName string, metadata map[string]interface{}, success bool, errorMsg string) error {
	severity := SeverityInfo
	if !success {
		severity = SeverityError
	}
	return l.Log(ctx, &Event{
		EventType: eventType,
		Severity:  severity,
		UserID:    actor,
		IPAddress: ipAddress,
		Resource:  strategyName,
		Action:    string(eventType),
		Success:   success,
		ErrorMsg:  errorMsg,
		Metadata:  metadata,
	})
}
