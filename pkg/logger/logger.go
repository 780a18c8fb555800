package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

// Options configure Init. An empty Level falls back to LOG_LEVEL, then to
// debug in development and info elsewhere. A nil Output means stdout.
type Options struct {
	Level       string
	Development bool
	Output      io.Writer
}

// InitLogger initializes the structured logger writing to stdout
func InitLogger(logLevel string, isDevelopment bool) *logrus.Logger {
	return Init(Options{Level: logLevel, Development: isDevelopment})
}

// Init builds the logger from opts and stores it as the global instance.
// Commands that speak a protocol on stdout pass os.Stderr as Output.
func Init(opts Options) *logrus.Logger {
	log := logrus.New()

	level, err := resolveLevel(opts.Level, opts.Development)
	log.SetLevel(level)
	if err != nil {
		log.WithField("invalid_level", opts.Level).Warn("Invalid LOG_LEVEL, using INFO")
	}

	// JSON everywhere except interactive development, unless LOG_FORMAT=json forces it
	if !opts.Development || strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			ForceColors:     true,
		})
	}

	if opts.Output != nil {
		log.SetOutput(opts.Output)
	} else {
		log.SetOutput(os.Stdout)
	}

	Logger = log
	return log
}

func resolveLevel(name string, isDevelopment bool) (logrus.Level, error) {
	if name == "" {
		name = os.Getenv("LOG_LEVEL")
	}
	if name == "" {
		if isDevelopment {
			return logrus.DebugLevel, nil
		}
		return logrus.InfoLevel, nil
	}

	level, err := logrus.ParseLevel(strings.ToLower(name))
	if err != nil {
		return logrus.InfoLevel, err
	}
	return level, nil
}

// NewNop returns a logger that discards everything, for tests and library callers
// that do not care about output
func NewNop() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// GetLogger returns the global logger instance
func GetLogger() *logrus.Logger {
	if Logger == nil {
		return InitLogger("info", false)
	}
	return Logger
}

// WithService creates a logger with service context
func WithService(serviceName string) *logrus.Entry {
	return GetLogger().WithField("service", serviceName)
}

// WithRunContext creates a logger carrying the optimization run and its strategy
func WithRunContext(runID, strategy string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"run_id":   runID,
		"strategy": strategy,
	})
}
