package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New creates a JSON logger tagged with the service name.
func New(serviceName, level string) *logrus.Entry {
	return NewWithOutput(serviceName, level, os.Stdout)
}

func NewWithOutput(serviceName, level string, out io.Writer) *logrus.Entry {
	log := logrus.New()

	log.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	log.SetOutput(out)

	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	return log.WithField("service", serviceName)
}

// Component scopes a logger to one subsystem.
func Component(l logrus.FieldLogger, name string) logrus.FieldLogger {
	return l.WithField("component", name)
}
