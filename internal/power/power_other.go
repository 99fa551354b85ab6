//go:build !linux && !darwin

package power

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/blite/internal/adapter"
)

func newPlatformWatcher(_ *logrus.Logger) (Watcher, error) {
	return Static{State: adapter.Unsupported}, nil
}
