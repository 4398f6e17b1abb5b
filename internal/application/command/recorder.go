package command

// Recorder receives counters from command handlers.
// *metrics.Metrics implements it; nil values fall back to NopRecorder.
type Recorder interface {
	VoiceEvent(kind string, ok bool)
	Credited(seconds, xp int64)
	LevelUps(n int)
	ClockAnomaly()
	RoleMutation(op string, ok bool)
	ReconcileError(kind string)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) VoiceEvent(string, bool)   {}
func (NopRecorder) Credited(int64, int64)     {}
func (NopRecorder) LevelUps(int)              {}
func (NopRecorder) ClockAnomaly()             {}
func (NopRecorder) RoleMutation(string, bool) {}
func (NopRecorder) ReconcileError(string)     {}
