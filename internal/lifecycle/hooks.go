// Package lifecycle runs shutdown hooks in ordered phases.
package lifecycle

import "context"

// Phase orders shutdown. Lower phases finish before higher ones start.
type Phase int

const (
	// PhaseIngress stops accepting updates and HTTP requests.
	PhaseIngress Phase = iota
	// PhaseWorkers stops background jobs and sweepers.
	PhaseWorkers
	// PhaseStorage closes connections the earlier phases used.
	PhaseStorage
)

// Hook describes a named shutdown hook.
type Hook struct {
	Name  string
	Phase Phase
	Fn    func(ctx context.Context) error
}
