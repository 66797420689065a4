package batch

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// ProgressInterval is the minimum time between two progress messages
const ProgressInterval = 40 * time.Millisecond

// Message types of the JSON progress protocol
const (
	TypeProgress      = "progress"
	TypeFileCompleted = "filecompleted"
	TypeFileFailed    = "filefailed"
	TypeSummary       = "summary"
)

// ProgressMessage reports overall progress
type ProgressMessage struct {
	Type    string `json:"type"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// FileCompletedMessage reports a finished unit
type FileCompletedMessage struct {
	Type             string   `json:"type"`
	InputPath        string   `json:"input_path"`
	OutputPaths      []string `json:"output_paths"`
	ProcessingTimeMs int64    `json:"processing_time_ms"`
}

// FileFailedMessage reports a failed unit
type FileFailedMessage struct {
	Type      string `json:"type"`
	InputPath string `json:"input_path"`
	Error     string `json:"error"`
}

// SummaryMessage closes the stream
type SummaryMessage struct {
	Type          string  `json:"type"`
	TotalFiles    int     `json:"total_files"`
	Processed     int     `json:"processed"`
	Failed        int     `json:"failed"`
	Skipped       int     `json:"skipped"`
	DurationSecs  float64 `json:"duration_secs"`
	DryRun        bool    `json:"dry_run"`
	PairsCombined int     `json:"pairs_combined"`
}

// Emitter writes newline-delimited JSON messages. Progress messages are
// throttled to one per ProgressInterval, except the one reaching the total,
// and never go backwards. It is safe for concurrent use.
type Emitter struct {
	mu       sync.Mutex
	enc      *json.Encoder
	interval time.Duration
	now      func() time.Time
	last     time.Time
	current  int
	sent     bool
}

// NewEmitter creates an emitter writing to w
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{
		enc:      json.NewEncoder(w),
		interval: ProgressInterval,
		now:      time.Now,
	}
}

// Progress emits a progress message unless one was emitted less than
// ProgressInterval ago or a later count was already written. It reports
// whether the message was written.
func (e *Emitter) Progress(current, total int, message string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sent && current <= e.current {
		return false
	}
	now := e.now()
	if current < total && !e.last.IsZero() && now.Sub(e.last) < e.interval {
		return false
	}
	e.last = now
	e.current, e.sent = current, true
	return e.enc.Encode(ProgressMessage{
		Type:    TypeProgress,
		Current: current,
		Total:   total,
		Message: message,
	}) == nil
}

// FileCompleted emits a completion message
func (e *Emitter) FileCompleted(inputPath string, outputs []string, elapsed time.Duration) {
	e.emit(FileCompletedMessage{
		Type:             TypeFileCompleted,
		InputPath:        inputPath,
		OutputPaths:      outputs,
		ProcessingTimeMs: elapsed.Milliseconds(),
	})
}

// FileFailed emits a failure message
func (e *Emitter) FileFailed(inputPath string, err error) {
	e.emit(FileFailedMessage{
		Type:      TypeFileFailed,
		InputPath: inputPath,
		Error:     err.Error(),
	})
}

// Summary emits the final summary
func (e *Emitter) Summary(s Summary) {
	e.emit(SummaryMessage{
		Type:          TypeSummary,
		TotalFiles:    s.Discovered,
		Processed:     s.Succeeded,
		Failed:        s.Failed,
		Skipped:       s.Skipped,
		DurationSecs:  s.Duration.Seconds(),
		DryRun:        s.DryRun,
		PairsCombined: s.PairsCombined,
	})
}

func (e *Emitter) emit(v any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enc.Encode(v)
}
