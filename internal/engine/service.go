// Package engine runs one actor per traded symbol and ticks them on a
// schedule. The API layer reads engine state only through Service.
package engine

import "context"

// Service is the read side of the engine used by the API layer.
type Service interface {
	Symbols() []string
	Snapshot(symbol string) (Snapshot, bool)
	Snapshots() []Snapshot
	Status(ctx context.Context) SystemStatus
}
