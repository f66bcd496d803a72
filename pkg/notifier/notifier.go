// Package notifier provides desktop notifications for finished runs
package notifier

import (
	"fmt"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/plamolinux/pkgbuild/pkg/logger"
)

// Title is used for every notification
const Title = "pkgbuild"

// SendFunc delivers one notification
type SendFunc func(title, message string) error

// RunNotifier handles run notifications
type RunNotifier struct {
	enabled bool
	sound   bool
	send    SendFunc
	logger  logger.Logger
}

// Config represents notification configuration
type Config struct {
	Enabled bool

	// Sound beeps after failure notifications
	Sound bool
}

// New creates a new run notifier
func New(config Config, log logger.Logger) *RunNotifier {
	return &RunNotifier{
		enabled: config.Enabled,
		sound:   config.Sound,
		send:    notify,
		logger:  log,
	}
}

// SetSender replaces the notification backend
func (n *RunNotifier) SetSender(fn SendFunc) {
	n.send = fn
}

// NotifyRunSuccess notifies that every job of a run finished
func (n *RunNotifier) NotifyRunSuccess(built, skipped int, duration time.Duration) {
	if !n.enabled {
		return
	}

	message := fmt.Sprintf("%d built, %d skipped in %s", built, skipped, formatDuration(duration))
	n.sendNotification("✅ "+Title, message)
}

// NotifyRunFailure notifies that a run was aborted or is incomplete
func (n *RunNotifier) NotifyRunFailure(job string, err error) {
	if !n.enabled {
		return
	}

	message := fmt.Sprintf("%v", err)
	if job != "" {
		message = fmt.Sprintf("%s: %v", job, err)
	}
	n.sendNotification("❌ "+Title, message)

	if n.sound {
		if err := beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration); err != nil {
			n.logger.Debug("Failed to play sound", logger.WithError(err))
		}
	}
}

func (n *RunNotifier) sendNotification(title, message string) {
	if err := n.send(title, message); err != nil {
		n.logger.Debug("Failed to send notification", logger.WithError(err))
		n.logger.Info(fmt.Sprintf("%s: %s", title, message))
	}
}

func notify(title, message string) error {
	return beeep.Notify(title, message, "")
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
