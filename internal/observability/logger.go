package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypePlan        EventType = "plan"
	EventTypeInterrupt   EventType = "interrupt"
	EventTypeResume      EventType = "resume"
	EventTypeStep        EventType = "step"
	EventTypeReplan      EventType = "replan"
	EventTypeResponse    EventType = "response"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeError       EventType = "error"
	EventTypeCost        EventType = "cost"
	EventTypeHeartbeat   EventType = "heartbeat"
	EventTypeLLM         EventType = "llm"
)

// Event represents a structured log entry. ChatID carries the session thread id,
// TaskID the node that emitted it.
type Event struct {
	Type      EventType `json:"type"`
	ChatID    string    `json:"chat_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging. A nil *Logger discards everything.
type Logger struct {
	mu         sync.Mutex
	out        io.Writer
	llmLogPath string
	maxSize    int64
}

func NewLogger() *Logger {
	return NewLoggerTo(os.Stdout, filepath.Join("logs", "llm.jsonl"))
}

// NewLoggerTo writes events to out and LLM transcripts to llmLogPath
// (an empty path disables the transcript file).
func NewLoggerTo(out io.Writer, llmLogPath string) *Logger {
	return &Logger{
		out:        out,
		llmLogPath: llmLogPath,
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event.
func (l *Logger) Log(evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		data = []byte(fmt.Sprintf("{\"error\": \"failed to marshal event: %v\"}", err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(data))

	if evt.Type == EventTypeLLM && l.llmLogPath != "" {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

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
	// keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

func (l *Logger) LogPlan(threadID, node string, steps any) {
	l.Log(Event{Type: EventTypePlan, ChatID: threadID, TaskID: node, Data: map[string]any{"steps": steps}})
}

func (l *Logger) LogInterrupt(threadID string, payload any) {
	l.Log(Event{Type: EventTypeInterrupt, ChatID: threadID, TaskID: "human_review", Data: payload})
}

func (l *Logger) LogResume(threadID string, feedback string) {
	l.Log(Event{
		Type:   EventTypeResume,
		ChatID: threadID,
		TaskID: "human_review",
		Data:   map[string]any{"feedback": feedback, "approved": feedback == ""},
	})
}

func (l *Logger) LogStep(threadID string, iteration int, capability, result string) {
	l.Log(Event{
		Type:   EventTypeStep,
		ChatID: threadID,
		TaskID: "executor",
		Data: map[string]any{
			"iteration":  iteration,
			"capability": capability,
			"result":     result,
		},
	})
}

func (l *Logger) LogReplan(threadID string, decision string, remaining int) {
	l.Log(Event{
		Type:   EventTypeReplan,
		ChatID: threadID,
		TaskID: "replanner",
		Data:   map[string]any{"decision": decision, "remaining_steps": remaining},
	})
}

func (l *Logger) LogResponse(threadID, response string) {
	l.Log(Event{Type: EventTypeResponse, ChatID: threadID, Data: map[string]string{"response": response}})
}

func (l *Logger) LogPolicyCheck(threadID, capability, effect, reason string) {
	l.Log(Event{
		Type:   EventTypePolicyCheck,
		ChatID: threadID,
		TaskID: "executor",
		Data: map[string]string{
			"capability": capability,
			"effect":     effect,
			"reason":     reason,
		},
	})
}

func (l *Logger) LogError(threadID, node string, err error) {
	l.Log(Event{Type: EventTypeError, ChatID: threadID, TaskID: node, Data: map[string]string{"error": err.Error()}})
}

func (l *Logger) LogCost(chatID, taskID string, promptTokens, completionTokens int, model string) {
	l.Log(Event{
		Type:   EventTypeCost,
		ChatID: chatID,
		TaskID: taskID,
		Data: map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
			"model":             model,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(chatID, taskID string, prompt any, response string, toolCalls any) {
	l.Log(Event{
		Type:   EventTypeLLM,
		ChatID: chatID,
		TaskID: taskID,
		Data: map[string]any{
			"prompt":     prompt,
			"response":   response,
			"tool_calls": toolCalls,
		},
	})
}
