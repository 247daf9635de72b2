package metrics

import "expvar"

var (
	EventsReceived    = expvar.NewInt("events_received")
	EventDecodeErrors = expvar.NewInt("event_decode_errors")
	WSReconnects      = expvar.NewInt("ws_reconnects")

	PollCycles = expvar.NewInt("poll_cycles")
	PollErrors = expvar.NewInt("poll_errors")

	TradesDetected    = expvar.NewInt("trades_detected")
	TradesDuplicate   = expvar.NewInt("trades_duplicate")
	TradesUnknownSide = expvar.NewInt("trades_unknown_side")
	TradesMirrored    = expvar.NewInt("trades_mirrored")
	MirrorFailures    = expvar.NewInt("mirror_failures")
	MirrorQueueDrops  = expvar.NewInt("mirror_queue_drops")
)
