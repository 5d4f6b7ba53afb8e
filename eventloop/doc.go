// Package eventloop provides the single cooperative loop the media pipeline
// runs on.
//
// Every pipeline state transition, ring buffer access and timer callback
// executes on one Loop goroutine. Transport notifications (packet arrival,
// send-ready) are posted onto the same loop rather than invoked from the
// transport's own goroutines, so pipeline code never needs locks and is
// never re-entered while it runs.
//
// The loop is driven either by Run, which blocks until its context ends, or
// by RunPending, which executes everything queued so far and returns. Tests
// use RunPending together with ManualScheduler to step the pipeline
// deterministically:
//
//	loop := eventloop.New(64)
//	sched := eventloop.NewManualScheduler()
//	sched.Tick()      // fire pacing timers once
//	loop.RunPending() // deliver the callbacks they caused
package eventloop
