// Package events records the lifecycle of a run as an ordered stream of typed
// events. The Tracer is the sink handed to the scheduler and agents; live
// consumers (dashboard, CLI logging) subscribe to it, and cost reports are
// derived from the recorded model-response events.
package events
