package internal

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process logger. All emissions go through this logger or a
// derivative of it.
var Log = newLogger(zap.InfoLevel)

func newLogger(level zapcore.Level) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = func(ts time.Time, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(ts.UTC().Format("2006/01/02 15:04:05.000"))
	}
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleOut := zapcore.Lock(os.Stderr)
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), consoleOut, level)

	return zap.New(core)
}

// SetVerboseLogging lowers the log threshold to debug. Extraction and
// sanitization detail is only visible at debug level.
func SetVerboseLogging() {
	Log = newLogger(zap.DebugLevel)
}
