// Package logger provides the global structured logger for skein.
//
// The logger is a zap SugaredLogger. Call Initialize once from main before
// any component logs; until then the package-level Logger is a safe no-op.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is the global logger instance
	Logger *zap.SugaredLogger
	// JSONOutput tracks whether JSON output is enabled
	JSONOutput bool
)

func init() {
	// Safe no-op logger at package load time so components can log
	// before Initialize() is called without nil panics.
	Logger = zap.NewNop().Sugar()
}

// Initialize sets up the global logger.
// With jsonOutput the logger emits machine-readable JSON; otherwise it
// emits human-readable console output.
func Initialize(jsonOutput bool) error {
	JSONOutput = jsonOutput

	var zapLogger *zap.Logger
	var err error

	if jsonOutput {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		zapLogger, err = config.Build()
		if err != nil {
			return err
		}
	} else {
		encoderCfg := zap.NewDevelopmentEncoderConfig()
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapLogger = zap.New(
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(encoderCfg),
				zapcore.AddSync(os.Stdout),
				zap.InfoLevel,
			),
		)
	}

	Logger = zapLogger.Sugar()
	return nil
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type Ticker struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func NewTicker() *Ticker {
//	    return &Ticker{
//	        logger: logger.ComponentLogger("ingest.ticker"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// Sync flushes any buffered log entries. Call on shutdown.
func Sync() {
	_ = Logger.Sync()
}
