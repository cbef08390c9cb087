package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var setupOnce sync.Once

// Options controls the process-wide logger.
type Options struct {
	Debug  bool
	Format string // "text" or "json"
	Output io.Writer
}

// Setup configures the global logrus logger. Only the first call wins.
func Setup(opts Options) {
	setupOnce.Do(func() {
		apply(logrus.StandardLogger(), opts)
	})
}

func apply(l *logrus.Logger, opts Options) {
	if opts.Output != nil {
		l.SetOutput(opts.Output)
	} else {
		l.SetOutput(os.Stderr)
	}
	if strings.EqualFold(opts.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if opts.Debug {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
}

// For returns an entry tagged with the component name.
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}
