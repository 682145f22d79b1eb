// Package logger wires a process-wide zap logger, configured from
// environment variables the same way the rest of this codebase reads
// its configuration — no dynamic reloading.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger
)

// LogLevel represents an available log level.
type LogLevel string

const (
	DEBUG LogLevel = "debug"
	INFO  LogLevel = "info"
	WARN  LogLevel = "warn"
	ERROR LogLevel = "error"
)

// LogFormat represents an output encoding.
type LogFormat string

const (
	JSON    LogFormat = "json"
	CONSOLE LogFormat = "console"
)

// Config holds logger configuration.
type Config struct {
	Level      LogLevel
	Format     LogFormat
	OutputPath string
	Caller     bool
	Stacktrace bool
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:      INFO,
		Format:     CONSOLE,
		OutputPath: "stdout",
		Caller:     true,
		Stacktrace: true,
	}
}

// Init initializes the global logger with the given configuration.
func Init(config Config) error {
	var level zapcore.Level
	switch config.Level {
	case DEBUG:
		level = zapcore.DebugLevel
	case WARN:
		level = zapcore.WarnLevel
	case ERROR:
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	var encoder zapcore.Encoder

	if config.Format == JSON {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05")
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	var writeSyncer zapcore.WriteSyncer
	if config.OutputPath == "stdout" || config.OutputPath == "" {
		writeSyncer = zapcore.AddSync(os.Stdout)
	} else {
		file, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		writeSyncer = zapcore.AddSync(file)
	}

	core := zapcore.NewCore(encoder, writeSyncer, level)

	var options []zap.Option
	if config.Caller {
		options = append(options, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	if config.Stacktrace {
		options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	Logger = zap.New(core, options...)
	Sugar = Logger.Sugar()

	return nil
}

// InitFromEnv initializes the logger from SCHED_LOG_* environment
// variables, falling back to DefaultConfig for anything unset.
func InitFromEnv() error {
	config := DefaultConfig()

	if level := os.Getenv("SCHED_LOG_LEVEL"); level != "" {
		config.Level = LogLevel(strings.ToLower(level))
	}
	if format := os.Getenv("SCHED_LOG_FORMAT"); format != "" {
		config.Format = LogFormat(strings.ToLower(format))
	}
	if output := os.Getenv("SCHED_LOG_OUTPUT"); output != "" {
		config.OutputPath = output
	}
	if caller := os.Getenv("SCHED_LOG_CALLER"); caller == "false" {
		config.Caller = false
	}

	return Init(config)
}

// Sync flushes any buffered log entries.
func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// WithComponent adds component context to the logger.
func WithComponent(component string) *zap.Logger {
	return Logger.With(zap.String("component", component))
}

// WithProject adds project context to the logger.
func WithProject(projectID string) *zap.Logger {
	return Logger.With(zap.String("project_id", projectID))
}

// WithTask adds task context to the logger.
func WithTask(taskID string) *zap.Logger {
	return Logger.With(zap.String("task_id", taskID))
}

// WithJob adds cascade-job context (task id + version token) to the
// logger — every worker log line carries these two fields so a stale
// job and its superseding job can be told apart in the log stream.
func WithJob(taskID, versionToken string) *zap.Logger {
	return Logger.With(
		zap.String("task_id", taskID),
		zap.String("version_token", versionToken),
	)
}

func init() {
	// Fall back to a usable default so packages that log at import
	// time (none today) or before InitFromEnv runs never nil-panic.
	Logger = zap.NewNop()
	Sugar = Logger.Sugar()
}
