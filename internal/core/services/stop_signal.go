package services

import "sync/atomic"

// GlobalStopSignal is the process-wide cooperative stop flag. Raising it does
// not interrupt anything: running operations poll ShouldStop between their
// own steps and decide how to wind down. Clearing it before a subsequent run
// is the operation's policy, not enforced here.
type GlobalStopSignal struct {
	flag atomic.Bool
}

func NewGlobalStopSignal() *GlobalStopSignal {
	return &GlobalStopSignal{}
}

// RequestStop raises the flag. Idempotent.
func (s *GlobalStopSignal) RequestStop() {
	s.flag.Store(true)
}

// ShouldStop reports whether a stop has been requested.
func (s *GlobalStopSignal) ShouldStop() bool {
	return s.flag.Load()
}

// Clear lowers the flag so a subsequent run starts unsignalled.
func (s *GlobalStopSignal) Clear() {
	s.flag.Store(false)
}
