package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is the process-wide logger. Components take a child via
	// Logger.Named rather than reaching for the global.
	Logger *zap.SugaredLogger
	// JSONOutput reports whether Initialize selected JSON lines
	JSONOutput bool
)

func init() {
	// No-op until Initialize runs, so library code and tests never hit nil
	Logger = zap.NewNop().Sugar()
}

// Initialize sets up the global logger. Logs go to stderr: stdout belongs to
// command output such as `dataq check --format json`.
func Initialize(jsonOutput bool, verbosity int) error {
	JSONOutput = jsonOutput
	level := zap.NewAtomicLevelAt(VerbosityToLevel(verbosity))

	var enc zapcore.Encoder
	if jsonOutput {
		enc = newJSONEncoder()
	} else {
		enc = newConsoleEncoder()
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)
	opts := []zap.Option{zap.ErrorOutput(zapcore.Lock(os.Stderr))}
	if jsonOutput {
		opts = append(opts, zap.Fields(zap.String("service", "dataq")), zap.AddStacktrace(zapcore.ErrorLevel))
	}

	Logger = zap.New(core, opts...).Sugar()
	return nil
}

// newJSONEncoder is the production encoder with ISO8601 timestamps
func newJSONEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.MillisDurationEncoder
	return zapcore.NewJSONEncoder(cfg)
}

// newConsoleEncoder is zap's console encoder with short timestamps and
// colored levels; logger names read as "pipeline.service".
func newConsoleEncoder() zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	cfg.CallerKey = ""
	cfg.StacktraceKey = ""
	return zapcore.NewConsoleEncoder(cfg)
}

// Cleanup flushes buffered entries. Sync on a terminal stderr returns
// EINVAL on some platforms, so the error is dropped.
func Cleanup() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

func Infow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Infow(msg, keysAndValues...)
	}
}

func Warnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Warnw(msg, keysAndValues...)
	}
}

func Errorw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Errorw(msg, keysAndValues...)
	}
}

func Debugw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Debugw(msg, keysAndValues...)
	}
}
