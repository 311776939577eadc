package iprewriter

import "github.com/sirupsen/logrus"

// defaultLogger is the component-tagged entry a Rewriter falls back to
// when no WithLogger option is given.
func defaultLogger() *logrus.Entry {
	return logrus.WithField("component", "iprewriter")
}
