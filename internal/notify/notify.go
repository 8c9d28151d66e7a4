// Package notify raises desktop notifications.
package notify

import "github.com/gen2brain/beeep"

// Desktop implements ports.Notifier over the platform notification daemon.
type Desktop struct{}

func NewDesktop() *Desktop {
	return &Desktop{}
}

func (d *Desktop) Notify(title, message string) error {
	return beeep.Notify(title, message, "")
}
