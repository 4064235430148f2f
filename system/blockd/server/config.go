package server

import (
	"log/slog"

	"github.com/blocktree-io/blocktree"
)

// Spec holds the runtime specification for the server.
// Config contains the serializable settings loaded from a file.
type Spec struct {
	Config *Config
	Store  blocktree.Store
	Log    *slog.Logger
}
