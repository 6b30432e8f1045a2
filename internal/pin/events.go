package pin

import "time"

// Event types published on the bus when a mass operation finishes.
const (
	EventBroadcastFinished = "pin.broadcast_finished"
	EventUnpinFinished     = "pin.unpin_finished"
)

// BroadcastSummary is the Data payload of EventBroadcastFinished.
type BroadcastSummary struct {
	MessageID  int64         `json:"message_id"`
	Recipients int           `json:"recipients"`
	Sent       int           `json:"sent"`
	Failed     int           `json:"failed"`
	Took       time.Duration `json:"took"`
}

// UnpinSummary is the Data payload of EventUnpinFinished.
type UnpinSummary struct {
	MessageID  int64         `json:"message_id"`
	Recipients int           `json:"recipients"`
	Unpinned   int           `json:"unpinned"`
	Failed     int           `json:"failed"`
	Took       time.Duration `json:"took"`
}
