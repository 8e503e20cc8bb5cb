// internal/status/snapshot.go
package status

// Snapshot represents exactly what the status writer is allowed to deliver.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Health        uint16
	MissingMask   uint16
	CyclesStarved uint16
	FeedCount     uint16
	GateEnabled   uint16
	ResetCause    uint32
}
