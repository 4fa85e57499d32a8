// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger is the leveled logger every other package in this
// repository calls into: a log/slog logger with a custom TRACE level
// below DEBUG, a choice of "text" or "json" output, and an optional
// lumberjack-backed rotating file sink for a follower left running
// unattended. Severity and format are configured once, from
// cfg.Config.Logging, at process start; every package-level Tracef/
// Debugf/Infof/Warnf/Errorf call after that goes through the same
// *slog.Logger.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/googlecloudplatform/ntfsindex/cfg"
)

// Custom severities, threaded through a slog.LevelVar so they can be
// reconfigured at runtime without rebuilding the handler. TRACE sits below
// slog's built-in Debug so a volume scan's per-record chatter can be
// filtered out independently of ordinary debug logging.
const (
	LevelTrace slog.Level = slog.LevelDebug - 4
	LevelDebug slog.Level = slog.LevelDebug
	LevelInfo  slog.Level = slog.LevelInfo
	LevelWarn  slog.Level = slog.LevelWarn
	LevelError slog.Level = slog.LevelError
	LevelOff   slog.Level = slog.LevelError + 4
)

// loggerFactory owns the destination (stderr, a plain file, or a
// lumberjack-rotated file) and format/level currently in effect.
// InitLogFile swaps it out wholesale; SetLogFormat changes its format
// field in place and rebuilds the default logger.
type loggerFactory struct {
	writer          io.Writer
	rotator         *lumberjack.Logger
	format          string
	severity        string
	logRotateConfig cfg.LogRotateLoggingConfig
}

var (
	defaultLoggerFactory = &loggerFactory{writer: os.Stderr, format: "text", severity: cfg.INFO}
	programLevel         = new(slog.LevelVar)
	defaultLogger        = slog.New(defaultLoggerFactory.createJSONOrTextHandler(os.Stderr, programLevel, ""))
)

func init() {
	setLoggingLevel(cfg.INFO, programLevel)
}

// InitLogFile reconfigures the default logger from a cfg.LoggingConfig: if
// FilePath is set, output is rotated through lumberjack using
// logCfg.LogRotate; otherwise logs continue to stderr.
func InitLogFile(logCfg cfg.LoggingConfig) error {
	factory := &loggerFactory{
		format:          logCfg.Format,
		severity:        logCfg.Severity,
		logRotateConfig: logCfg.LogRotate,
	}

	var w io.Writer = os.Stderr
	if logCfg.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   logCfg.FilePath,
			MaxSize:    logCfg.LogRotate.MaxFileSizeMb,
			MaxBackups: logCfg.LogRotate.BackupFileCount,
			Compress:   logCfg.LogRotate.Compress,
		}
		factory.rotator = rotator
		w = rotator
	}
	factory.writer = w

	defaultLoggerFactory = factory
	programLevel = new(slog.LevelVar)
	setLoggingLevel(logCfg.Severity, programLevel)
	defaultLogger = slog.New(factory.createJSONOrTextHandler(w, programLevel, ""))
	return nil
}

// SetLogFormat switches the active logger between "text" and "json"
// output without touching its destination or level.
func SetLogFormat(format string) {
	defaultLoggerFactory.format = format
	defaultLogger = slog.New(defaultLoggerFactory.createJSONOrTextHandler(defaultLoggerFactory.writer, programLevel, ""))
}

// setLoggingLevel maps a cfg severity string onto the slog level var the
// active handler filters against.
func setLoggingLevel(severity string, level *slog.LevelVar) {
	switch severity {
	case cfg.TRACE:
		level.Set(LevelTrace)
	case cfg.DEBUG:
		level.Set(LevelDebug)
	case cfg.WARNING:
		level.Set(LevelWarn)
	case cfg.ERROR:
		level.Set(LevelError)
	case cfg.OFF:
		level.Set(LevelOff)
	default:
		level.Set(LevelInfo)
	}
}

// createJSONOrTextHandler builds the handler for the configured format,
// renaming slog's "level"/"msg" keys to "severity"/"message" and
// formatting the custom levels by name rather than slog's default
// "DEBUG-4"/"ERROR+4" rendering.
func (f *loggerFactory) createJSONOrTextHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	replace := func(groups []string, a slog.Attr) slog.Attr {
		switch a.Key {
		case slog.TimeKey:
			if f.format == "json" {
				t := a.Value.Time()
				return slog.Group("timestamp",
					slog.Int64("seconds", t.Unix()),
					slog.Int("nanos", t.Nanosecond()))
			}
			return slog.String(slog.TimeKey, a.Value.Time().Format("01/02/2006 15:04:05.000000"))
		case slog.LevelKey:
			return slog.String("severity", severityName(a.Value.Any().(slog.Level)))
		case slog.MessageKey:
			msg := a.Value.String()
			if prefix != "" {
				msg = prefix + msg
			}
			return slog.String("message", msg)
		}
		return a
	}

	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: replace}
	if f.format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func severityName(level slog.Level) string {
	switch {
	case level < LevelDebug:
		return "TRACE"
	case level < LevelInfo:
		return "DEBUG"
	case level < LevelWarn:
		return "INFO"
	case level < LevelError:
		return "WARNING"
	default:
		return "ERROR"
	}
}

// Tracef logs at TRACE severity, below ordinary debug logging -- the scan
// orchestrator and the change follower use it for per-record stale-update
// drops that would otherwise flood a million-record scan's DEBUG output.
func Tracef(format string, v ...any) {
	defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, v...))
}

// Debugf logs at DEBUG severity.
func Debugf(format string, v ...any) {
	defaultLogger.Log(context.Background(), LevelDebug, fmt.Sprintf(format, v...))
}

// Infof logs at INFO severity.
func Infof(format string, v ...any) {
	defaultLogger.Log(context.Background(), LevelInfo, fmt.Sprintf(format, v...))
}

// Warnf logs at WARNING severity.
func Warnf(format string, v ...any) {
	defaultLogger.Log(context.Background(), LevelWarn, fmt.Sprintf(format, v...))
}

// Errorf logs at ERROR severity.
func Errorf(format string, v ...any) {
	defaultLogger.Log(context.Background(), LevelError, fmt.Sprintf(format, v...))
}
