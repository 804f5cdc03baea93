package lifecycle

import (
	"auction-client/internal/domain"
	"auction-client/pkg/logger"
)

// StreamController is the slice of the push stream client the controller
// drives.
type StreamController interface {
	Connect()
	Disconnect()
}

// Controller is the only caller of the push stream's connect/disconnect.
// It binds the stream's liveness to session transitions: authenticated means
// connected, anything else means disconnected. Session guard listeners fire
// only once an auth operation has settled, so a resolving login never opens
// a connection early.
type Controller struct {
	stream StreamController
	log    logger.Logger
}

func NewController(stream StreamController, log logger.Logger) *Controller {
	return &Controller{
		stream: stream,
		log:    log,
	}
}

// HandleSessionChange is registered with the session guard's OnChange.
func (c *Controller) HandleSessionChange(s domain.Session) {
	if s.IsAuthenticated {
		c.log.Info("Session authenticated, opening stream", "user_id", s.UserID)
		c.stream.Connect()
		return
	}
	c.log.Info("Session ended, closing stream")
	c.stream.Disconnect()
}

// Reconnect is the manual escape hatch for UI-triggered recovery. It cycles
// the connection without touching the automatic retry logic.
func (c *Controller) Reconnect() {
	c.log.Info("Manual stream reconnect requested")
	c.stream.Disconnect()
	c.stream.Connect()
}
