package logging

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

type contextKey struct{}

// Fields carried through a context and attached to every log entry built
// from it.
type Fields struct {
	RunID     string
	Component string
	Region    string
	Service   string
}

// Setup configures the standard logrus logger.
func Setup(out io.Writer, level, format string) error {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(lvl)
	logrus.SetOutput(out)

	switch strings.ToLower(format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

// WithFields returns a copy of ctx carrying f merged over any fields already
// present. Empty values in f do not clear existing ones.
func WithFields(ctx context.Context, f Fields) context.Context {
	cur := FromContext(ctx)
	if f.RunID != "" {
		cur.RunID = f.RunID
	}
	if f.Component != "" {
		cur.Component = f.Component
	}
	if f.Region != "" {
		cur.Region = f.Region
	}
	if f.Service != "" {
		cur.Service = f.Service
	}
	return context.WithValue(ctx, contextKey{}, cur)
}

func FromContext(ctx context.Context) Fields {
	if f, ok := ctx.Value(contextKey{}).(Fields); ok {
		return f
	}
	return Fields{}
}

// Entry takes a context.Context and constructs a logrus.Entry from it,
// adding the run, component, region and service fields that are set.
func Entry(ctx context.Context) *logrus.Entry {
	f := FromContext(ctx)
	fields := logrus.Fields{}
	if f.RunID != "" {
		fields["run_id"] = f.RunID
	}
	if f.Component != "" {
		fields["component"] = f.Component
	}
	if f.Region != "" {
		fields["region"] = f.Region
	}
	if f.Service != "" {
		fields["service"] = f.Service
	}
	return logrus.WithFields(fields)
}
