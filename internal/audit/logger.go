package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperbrief/internal/pkg/timeutil"
)

const (
	EntryTypePrompt   = "prompt"
	EntryTypeModel    = "model"
	EntryTypeEvidence = "evidence"
	EntryTypeSummary  = "summary"
)

// Entry is one audit record. Content shape depends on EntryType.
type Entry struct {
	Timestamp string                 `json:"timestamp"`
	EntryType string                 `json:"entry_type"`
	Content   map[string]interface{} `json:"content"`
	SessionID string                 `json:"session_id"`
	UserID    string                 `json:"user_id,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Report is the grouped export of one session's trail.
type Report struct {
	SessionID   string             `json:"session_id"`
	GeneratedAt string             `json:"generated_at"`
	Summary     ReportSummary      `json:"summary"`
	Entries     map[string][]Entry `json:"entries"`
}

type ReportSummary struct {
	TotalEntries  int            `json:"total_entries"`
	EntriesByType map[string]int `json:"entries_by_type"`
}

// Logger appends one JSON line per event to a per-session file under dir.
// Appends are serialized by a mutex; an audit write failure is logged and
// swallowed so it never fails the query it records.
type Logger struct {
	mu        sync.Mutex
	dir       string
	sessionID string
	path      string
}

func NewLogger(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	now := time.Now()
	sessionID := now.Format("20060102_150405") + fmt.Sprintf("_%06d", now.Nanosecond()/1000)
	return &Logger{
		dir:       dir,
		sessionID: sessionID,
		path:      filepath.Join(dir, fmt.Sprintf("audit_log_%s.jsonl", sessionID)),
	}, nil
}

func (l *Logger) SessionID() string {
	return l.sessionID
}

func (l *Logger) Path() string {
	return l.path
}

func (l *Logger) LogPrompt(ctx context.Context, prompt, promptType string, metadata map[string]interface{}) {
	l.write(ctx, Entry{
		EntryType: EntryTypePrompt,
		Content: map[string]interface{}{
			"prompt":      prompt,
			"prompt_type": promptType,
		},
		UserID:   UserIDFromContext(ctx),
		Metadata: metadata,
	})
}

func (l *Logger) LogModel(ctx context.Context, modelInfo map[string]interface{}, metadata map[string]interface{}) {
	l.write(ctx, Entry{
		EntryType: EntryTypeModel,
		Content:   modelInfo,
		UserID:    UserIDFromContext(ctx),
		Metadata:  metadata,
	})
}

func (l *Logger) LogEvidence(ctx context.Context, query string, snippets interface{}, metadata map[string]interface{}) {
	l.write(ctx, Entry{
		EntryType: EntryTypeEvidence,
		Content: map[string]interface{}{
			"query":             query,
			"evidence_snippets": snippets,
		},
		UserID:   UserIDFromContext(ctx),
		Metadata: metadata,
	})
}

func (l *Logger) LogSummary(ctx context.Context, summary interface{}, metadata map[string]interface{}) {
	content, err := toMap(summary)
	if err != nil {
		logutil.GetLogger(ctx).Error("encode summary for audit failed", zap.Error(err))
		return
	}
	l.write(ctx, Entry{
		EntryType: EntryTypeSummary,
		Content:   content,
		UserID:    UserIDFromContext(ctx),
		Metadata:  metadata,
	})
}

func (l *Logger) write(ctx context.Context, entry Entry) {
	entry.Timestamp = timeutil.NowISO()
	entry.SessionID = l.sessionID
	line, err := json.Marshal(entry)
	if err != nil {
		logutil.GetLogger(ctx).Error("encode audit entry failed", zap.Error(err))
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logutil.GetLogger(ctx).Error("open audit log failed", zap.Error(err), zap.String("path", l.path))
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		logutil.GetLogger(ctx).Error("write audit entry failed", zap.Error(err))
	}
}

// LoadAll reads every entry of the current session in write order.
func (l *Logger) LoadAll() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, err
	}
	defer f.Close()
	entries := make([]Entry, 0)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("decode audit line: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

// ExportReport groups the session trail by entry type and writes it as one
// JSON document next to the log file. Returns the report path.
func (l *Logger) ExportReport(ctx context.Context) (string, error) {
	entries, err := l.LoadAll()
	if err != nil {
		return "", err
	}
	grouped := make(map[string][]Entry)
	byType := make(map[string]int)
	for _, entry := range entries {
		grouped[entry.EntryType] = append(grouped[entry.EntryType], entry)
		byType[entry.EntryType]++
	}
	report := Report{
		SessionID:   l.sessionID,
		GeneratedAt: timeutil.NowISO(),
		Summary: ReportSummary{
			TotalEntries:  len(entries),
			EntriesByType: byType,
		},
		Entries: grouped,
	}
	blob, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	reportPath := filepath.Join(l.dir, fmt.Sprintf("audit_report_%s.json", l.sessionID))
	if err := os.WriteFile(reportPath, blob, 0o644); err != nil {
		return "", err
	}
	logutil.GetLogger(ctx).Info("audit report exported", zap.String("path", reportPath))
	return reportPath, nil
}

func toMap(v interface{}) (map[string]interface{}, error) {
	blob, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{})
	if err := json.Unmarshal(blob, &out); err != nil {
		return nil, err
	}
	return out, nil
}
