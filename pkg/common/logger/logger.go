package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is usable before Init with logrus defaults; Init applies the
// configured level and the JSON format.
var Log = logrus.New()

// Init configures the package logger. The level comes from the validated
// configuration; components never read environment state themselves.
func Init(level string) {
	Log.SetOutput(os.Stdout)
	Log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	Log.SetLevel(logLevel)
}

func WithField(key string, value interface{}) *logrus.Entry {
	return Log.WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log.WithFields(fields)
}
