package logger

import "go.uber.org/zap/zapcore"

// -v flag counts
const (
	VerbosityUser  = 0 // warnings and errors
	VerbosityInfo  = 1 // + startup, stage transitions, job progress
	VerbosityDebug = 2 // + prompt sizes, migrations, request lines
)

var levelNames = map[int]string{
	VerbosityUser:  "User",
	VerbosityInfo:  "Info (-v)",
	VerbosityDebug: "Debug (-vv)",
}

// VerbosityToLevel maps a -v count to a zap level; anything past -vv is debug
func VerbosityToLevel(verbosity int) zapcore.Level {
	switch clamp(verbosity) {
	case VerbosityUser:
		return zapcore.WarnLevel
	case VerbosityInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// LevelName is the banner label for a -v count
func LevelName(verbosity int) string {
	return levelNames[clamp(verbosity)]
}

func clamp(verbosity int) int {
	if verbosity < VerbosityUser {
		return VerbosityUser
	}
	if verbosity > VerbosityDebug {
		return VerbosityDebug
	}
	return verbosity
}
