// Package logging configures the process-wide logrus logger: a terse line format on the
// console and a verbose, daily rotated log file.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timestampLayout = "2006-01-02 15:04:05"

// Options selects the level and sinks for Setup.
type Options struct {
	Level   string
	File    string
	Backups int
	// Out receives console output. Defaults to os.Stdout.
	Out io.Writer
	// Now is used to decide whether the file is due for rotation. Defaults to time.Now.
	Now func() time.Time
}

// ParseLevel accepts logrus level names and the upper-case names used by older
// deployments (WARNING, CRITICAL).
func ParseLevel(raw string) (log.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "":
		return log.DebugLevel, nil
	case "WARNING":
		return log.WarnLevel, nil
	case "CRITICAL":
		return log.FatalLevel, nil
	}
	return log.ParseLevel(raw)
}

// Setup configures logger. The returned closer flushes and closes the log file.
func Setup(logger *log.Logger, opts Options) (io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	logger.SetLevel(level)
	logger.SetOutput(out)
	logger.SetFormatter(&LineFormatter{})
	logger.SetReportCaller(true)
	logger.ReplaceHooks(make(log.LevelHooks))

	if strings.TrimSpace(opts.File) == "" {
		return nopCloser{}, nil
	}
	if errMkdir := os.MkdirAll(filepath.Dir(opts.File), 0o755); errMkdir != nil {
		return nil, fmt.Errorf("logging: create log dir: %w", errMkdir)
	}

	file := &lumberjack.Logger{
		Filename:   opts.File,
		MaxBackups: opts.Backups,
		LocalTime:  true,
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if due, errDue := rotationDue(opts.File, now()); errDue != nil {
		return nil, fmt.Errorf("logging: stat log file: %w", errDue)
	} else if due {
		if errRotate := file.Rotate(); errRotate != nil {
			return nil, fmt.Errorf("logging: rotate log file: %w", errRotate)
		}
	}

	logger.AddHook(&FileHook{Writer: file, Formatter: &LineFormatter{Verbose: true}})
	return file, nil
}

// rotationDue reports whether the existing log file was last written on an earlier day
// than now, which is when a fresh file should be started.
func rotationDue(path string, now time.Time) (bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}
	modY, modM, modD := info.ModTime().In(now.Location()).Date()
	nowY, nowM, nowD := now.Date()
	lastDay := time.Date(modY, modM, modD, 0, 0, 0, 0, now.Location())
	today := time.Date(nowY, nowM, nowD, 0, 0, 0, 0, now.Location())
	return lastDay.Before(today), nil
}

// LineFormatter renders "[ts] [level] message". Verbose adds the caller file:line.
type LineFormatter struct {
	Verbose bool
}

// Format implements logrus.Formatter.
func (f *LineFormatter) Format(entry *log.Entry) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "[%s] [%s] ", entry.Time.Format(timestampLayout), strings.ToUpper(entry.Level.String()))
	if f.Verbose && entry.HasCaller() {
		fmt.Fprintf(&buf, "[%s:%d] ", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}
	buf.WriteString(entry.Message)
	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&buf, " %s=%v", k, entry.Data[k])
		}
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// FileHook writes every entry to Writer using its own formatter.
type FileHook struct {
	Writer    io.Writer
	Formatter log.Formatter
}

// Levels implements logrus.Hook.
func (h *FileHook) Levels() []log.Level {
	return log.AllLevels
}

// Fire implements logrus.Hook.
func (h *FileHook) Fire(entry *log.Entry) error {
	line, err := h.Formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.Writer.Write(line)
	return err
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
