package pushcore

import "expvar"

// Package-level accumulating counters, mirroring the teacher's pattern of
// exposing forwarder throughput via expvar and asserting on the delta
// between two reads in tests rather than resetting state between cases.
var (
	pushesFired      = expvar.NewInt("pushcore.pushes_fired")
	pushesDispatched = expvar.NewInt("pushcore.pushes_dispatched")
	pushesSucceeded  = expvar.NewInt("pushcore.pushes_succeeded")
	pushesRetried    = expvar.NewInt("pushcore.pushes_retried")
	pushesAbandoned  = expvar.NewInt("pushcore.pushes_abandoned")
	pushesCoalesced  = expvar.NewInt("pushcore.pushes_coalesced")
	pushesRejected   = expvar.NewInt("pushcore.pushes_rejected")
	pushesStuck      = expvar.NewInt("pushcore.pushes_stuck")
)
