package interfaces

import "tickstream/src/models"

// -----------------------------------------------------------------------------
// IViewerPublisher is the engine's outbound surface: the viewer hub.
// -----------------------------------------------------------------------------

type IViewerPublisher interface {

	// Broadcast fans a message out to every connected viewer. Never blocks
	// the caller; viewers that cannot keep up are pruned by the hub.
	Broadcast(msg *models.MStreamMessage)

	// -----------------------------------------------------------------------------

	// ViewerCount returns the number of currently connected viewers.
	ViewerCount() int
}
