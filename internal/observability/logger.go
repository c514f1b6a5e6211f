package observability

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeTurn         EventType = "turn"
	EventTypeIntent       EventType = "intent"
	EventTypeProjection   EventType = "projection"
	EventTypeToolCall     EventType = "tool_call"
	EventTypePolicyDenial EventType = "policy_denial"
	EventTypeConfirmation EventType = "confirmation"
	EventTypeDecision     EventType = "decision"
	EventTypeFinalize     EventType = "finalize"
	EventTypeReset        EventType = "reset"
	EventTypeReminder     EventType = "reminder"
	EventTypeHeartbeat    EventType = "heartbeat"
	EventTypeLLM          EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	ChatID    string    `json:"chat_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging.
type Logger struct {
	llmLogPath string
	maxSize    int64
}

func NewLogger() *Logger {
	return &Logger{
		llmLogPath: filepath.Join("logs", "llm.jsonl"),
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event to stdout.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		fmt.Printf("{\"error\": \"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Println(string(data))

	if evt.Type == EventTypeLLM {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogTurn(chatID, sessionID, text string) {
	l.Log(Event{
		Type:      EventTypeTurn,
		ChatID:    chatID,
		SessionID: sessionID,
		Data:      map[string]string{"text": text},
	})
}

func (l *Logger) LogIntent(chatID, sessionID, intent string) {
	l.Log(Event{
		Type:      EventTypeIntent,
		ChatID:    chatID,
		SessionID: sessionID,
		Data:      map[string]string{"intent": intent},
	})
}

// LogProjection records the outcome of applying a turn's actions.
func (l *Logger) LogProjection(chatID, sessionID string, report any) {
	l.Log(Event{
		Type:      EventTypeProjection,
		ChatID:    chatID,
		SessionID: sessionID,
		Data:      report,
	})
}

func (l *Logger) LogToolCall(chatID, sessionID, tool, args string) {
	l.Log(Event{
		Type:      EventTypeToolCall,
		ChatID:    chatID,
		SessionID: sessionID,
		Data: map[string]string{
			"tool": tool,
			"args": args,
		},
	})
}

func (l *Logger) LogPolicyDenial(chatID, sessionID, action, reason string) {
	l.Log(Event{
		Type:      EventTypePolicyDenial,
		ChatID:    chatID,
		SessionID: sessionID,
		Data: map[string]string{
			"action": action,
			"reason": reason,
		},
	})
}

func (l *Logger) LogConfirmation(chatID, sessionID, requestID, step string) {
	l.Log(Event{
		Type:      EventTypeConfirmation,
		ChatID:    chatID,
		SessionID: sessionID,
		Data: map[string]string{
			"request_id": requestID,
			"step":       step,
		},
	})
}

func (l *Logger) LogDecision(chatID, sessionID, requestID, kind string) {
	l.Log(Event{
		Type:      EventTypeDecision,
		ChatID:    chatID,
		SessionID: sessionID,
		Data: map[string]string{
			"request_id": requestID,
			"kind":       kind,
		},
	})
}

// LogFinalize records a finalize attempt; errMsg is empty on success.
func (l *Logger) LogFinalize(chatID, sessionID, ref, errMsg string) {
	l.Log(Event{
		Type:      EventTypeFinalize,
		ChatID:    chatID,
		SessionID: sessionID,
		Data: map[string]string{
			"ref":   ref,
			"error": errMsg,
		},
	})
}

func (l *Logger) LogReset(chatID, oldSessionID, newSessionID string) {
	l.Log(Event{
		Type:   EventTypeReset,
		ChatID: chatID,
		Data: map[string]string{
			"old_session_id": oldSessionID,
			"new_session_id": newSessionID,
		},
	})
}

func (l *Logger) LogReminder(chatID, description string) {
	l.Log(Event{
		Type:   EventTypeReminder,
		ChatID: chatID,
		Data:   map[string]string{"description": description},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(chatID, sessionID string, prompt any, response string, toolCalls any) {
	l.Log(Event{
		Type:      EventTypeLLM,
		ChatID:    chatID,
		SessionID: sessionID,
		Data: map[string]any{
			"prompt":     prompt,
			"response":   response,
			"tool_calls": toolCalls,
		},
	})
}
