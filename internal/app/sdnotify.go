package app

import "github.com/coreos/go-systemd/v22/daemon"

// Notifier reports a state to the service manager. sent is false when no
// service manager is listening.
type Notifier func(state string) (sent bool, err error)

const (
	SdReady     = daemon.SdNotifyReady
	SdReloading = daemon.SdNotifyReloading
	SdStopping  = daemon.SdNotifyStopping
)

// SystemdNotifier sends sd_notify messages over $NOTIFY_SOCKET.
func SystemdNotifier() Notifier {
	return func(state string) (bool, error) {
		return daemon.SdNotify(false, state)
	}
}
