// Package simulator runs a complete A2DP stream in one process: a source
// session captures PCM and paces encoded frames onto an in-memory loopback
// transport, and a sink session buffers, decodes and plays them.
//
// Every pipeline callback runs on a single eventloop.Loop. Captured audio is
// fed in real time from a separate goroutine that posts each period's PCM
// onto the loop, the way a capture device would.
package simulator
