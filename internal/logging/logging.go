package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultPrefix    = "tracker"
	defaultRetention = 7
	dateLayout       = "20060102"
)

const (
	envLogLevel  = "TRACKER_LOG_LEVEL"
	envLogFormat = "TRACKER_LOG_FORMAT"
)

// DailyWriter appends to <prefix>-YYYYMMDD.log, switching files at midnight
// and removing files older than the retention window.
type DailyWriter struct {
	dir           string
	prefix        string
	retentionDays int
	now           func() time.Time

	mu          sync.Mutex
	currentDate string
	file        *os.File
}

// NewDailyWriter creates a daily rotating writer with the tracker prefix.
func NewDailyWriter(dir string, retentionDays int) (*DailyWriter, error) {
	return NewDailyWriterWithPrefix(dir, defaultPrefix, retentionDays)
}

// NewDailyWriterWithPrefix creates a daily rotating writer with a custom prefix.
func NewDailyWriterWithPrefix(dir, prefix string, retentionDays int) (*DailyWriter, error) {
	if retentionDays <= 0 {
		retentionDays = defaultRetention
	}
	if prefix == "" {
		prefix = defaultPrefix
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	w := &DailyWriter{dir: dir, prefix: prefix, retentionDays: retentionDays, now: time.Now}
	if err := w.rotate(w.now()); err != nil {
		return nil, err
	}
	return w, nil
}

// Write implements io.Writer.
func (w *DailyWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rotate(w.now()); err != nil {
		return 0, err
	}
	return w.file.Write(p)
}

// Close closes the current file.
func (w *DailyWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// Path returns the file currently written to.
func (w *DailyWriter) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pathFor(w.currentDate)
}

func (w *DailyWriter) pathFor(date string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s-%s.log", w.prefix, date))
}

func (w *DailyWriter) rotate(now time.Time) error {
	date := now.Format(dateLayout)
	if date == w.currentDate && w.file != nil {
		return nil
	}
	if w.file != nil {
		_ = w.file.Close()
	}
	file, err := os.OpenFile(w.pathFor(date), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.currentDate = date
	w.file = file
	w.prune(now)
	return nil
}

func (w *DailyWriter) prune(now time.Time) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	cutoff := now.AddDate(0, 0, -w.retentionDays)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		rest, ok := strings.CutPrefix(entry.Name(), w.prefix+"-")
		if !ok {
			continue
		}
		datePart, ok := strings.CutSuffix(rest, ".log")
		if !ok || len(datePart) != len(dateLayout) {
			continue
		}
		date, err := time.Parse(dateLayout, datePart)
		if err != nil {
			continue
		}
		if date.Before(cutoff) {
			_ = os.Remove(filepath.Join(w.dir, entry.Name()))
		}
	}
}

// NewLogger creates a zerolog.Logger writing to stdout and a daily file in
// logDir. TRACKER_LOG_LEVEL and TRACKER_LOG_FORMAT override level and format.
// In console format stdout is human readable while the file keeps JSON lines.
func NewLogger(logDir, level, format string) (zerolog.Logger, *DailyWriter, error) {
	writer, err := NewDailyWriter(logDir, defaultRetention)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	return newLogger(os.Stdout, writer, level, format), writer, nil
}

func newLogger(stdout, file io.Writer, level, format string) zerolog.Logger {
	if v := strings.TrimSpace(os.Getenv(envLogFormat)); v != "" {
		format = v
	}
	var out io.Writer
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		out = zerolog.MultiLevelWriter(stdout, file)
	} else {
		console := zerolog.ConsoleWriter{Out: stdout, TimeFormat: "15:04:05"}
		out = zerolog.MultiLevelWriter(console, file)
	}
	return zerolog.New(out).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Str("service", defaultPrefix).
		Logger()
}

// ParseLevel resolves the effective level; the environment wins over
// fallback and unknown names mean info.
func ParseLevel(fallback string) zerolog.Level {
	value := strings.TrimSpace(os.Getenv(envLogLevel))
	if value == "" {
		value = fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
