package api

import (
	"github.com/blocktree-io/blocktree"
)

// Session protocol message types for bidirectional communication.
// All messages are newline-delimited JSON documents.
//
// Sync vs Async:
//   - No ID field = synchronous (client blocks until response)
//   - With ID field = asynchronous (client can pipeline, match responses by ID)

// --- Client → Server Messages ---

// Hello is the initial handshake message from client to server.
type Hello struct {
	ClientID string `json:"clientId"`
}

// HelloResponse is the server's response to a Hello message.
type HelloResponse struct {
	ServerID string `json:"serverId"`
	Backend  string `json:"backend"` // "memory" or "crdt"
	Version  string `json:"version"` // current version token
}

// CreateRequest creates one or more blocks in a single commit.
// Entries may name earlier entries in the same request as parents.
// Entries with an empty ID get a server-generated one.
type CreateRequest struct {
	Blocks []blocktree.NewBlock `json:"blocks"`
}

// CreateResult is the result of a create request. Blocks holds the
// created blocks in request order, including any generated IDs.
type CreateResult struct {
	Blocks  []*blocktree.Block `json:"blocks"`
	Version string             `json:"version"`
}

// UpdateRequest replaces the content of a block.
type UpdateRequest struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// UpdateResult is the result of an update request.
type UpdateResult struct {
	Block   *blocktree.Block `json:"block"`
	Version string           `json:"version"`
}

// DeleteRequest deletes blocks. Each deletion cascades to the block's
// descendants.
type DeleteRequest struct {
	IDs []string `json:"ids"`
}

// DeleteResult is the result of a delete request.
type DeleteResult struct {
	Version string `json:"version"`
}

// MoveRequest moves a block under a new parent at the given sibling
// position. At of -1 appends; positions past the end are clamped.
type MoveRequest struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId"`
	At       int    `json:"at"`
}

// MoveResult is the result of a move request.
type MoveResult struct {
	Block   *blocktree.Block `json:"block"`
	Version string           `json:"version"`
}

// GetRequest fetches blocks by ID.
type GetRequest struct {
	IDs []string `json:"ids"`
}

// GetResult is the result of a get request.
type GetResult struct {
	Blocks []*blocktree.Block `json:"blocks"`
}

// ListRequest lists blocks in depth-first document order.
// Traversal defaults to every block below the root. Filter is an
// optional expression evaluated against each block (see the filter
// package); blocks it rejects are omitted.
type ListRequest struct {
	Traversal *blocktree.Traversal `json:"traversal,omitempty"`
	Filter    string               `json:"filter,omitempty"`
}

// ListResult is the result of a list request.
type ListResult struct {
	Blocks []*blocktree.Block `json:"blocks"`
}

// VersionRequest requests the current version token.
type VersionRequest struct{}

// VersionResult is the result of a version request.
type VersionResult struct {
	Version string `json:"version"`
}

// WatchRequest subscribes to block changes under a client-chosen name.
// Since is an optional version token; changes after it are sent as
// events before the replayComplete marker, then live events follow.
// Filter is an optional expression; changes whose blocks it rejects
// are dropped from events (deletions always pass).
type WatchRequest struct {
	Name   string `json:"name"`
	Since  string `json:"since,omitempty"`
	Filter string `json:"filter,omitempty"`
}

// WatchResult is the result of a watch request.
type WatchResult struct {
	Watching string `json:"watching"` // the watch name
}

// UnwatchRequest cancels a named watch.
type UnwatchRequest struct {
	Name string `json:"name"`
}

// UnwatchResult is the result of an unwatch request.
type UnwatchResult struct {
	Unwatched string `json:"unwatched"` // the cancelled watch name
}

// SessionRequest is the top-level request message (union type).
// Only one of the operation fields should be set.
type SessionRequest struct {
	ID *string `json:"id,omitempty"` // Optional: if set, response will include this ID (async mode)

	Hello   *Hello          `json:"hello,omitempty"`
	Create  *CreateRequest  `json:"create,omitempty"`
	Update  *UpdateRequest  `json:"update,omitempty"`
	Delete  *DeleteRequest  `json:"delete,omitempty"`
	Move    *MoveRequest    `json:"move,omitempty"`
	Get     *GetRequest     `json:"get,omitempty"`
	List    *ListRequest    `json:"list,omitempty"`
	Version *VersionRequest `json:"version,omitempty"`
	Watch   *WatchRequest   `json:"watch,omitempty"`
	Unwatch *UnwatchRequest `json:"unwatch,omitempty"`
}

// --- Server → Client Messages ---

// SessionResult is the result of a request (union type).
// Only one of the fields should be set.
type SessionResult struct {
	Hello   *HelloResponse `json:"hello,omitempty"`
	Create  *CreateResult  `json:"create,omitempty"`
	Update  *UpdateResult  `json:"update,omitempty"`
	Delete  *DeleteResult  `json:"delete,omitempty"`
	Move    *MoveResult    `json:"move,omitempty"`
	Get     *GetResult     `json:"get,omitempty"`
	List    *ListResult    `json:"list,omitempty"`
	Version *VersionResult `json:"version,omitempty"`
	Watch   *WatchResult   `json:"watch,omitempty"`
	Unwatch *UnwatchResult `json:"unwatch,omitempty"`
}

// WatchEvent is a streaming event from a named watch.
type WatchEvent struct {
	Watch          string                  `json:"watch"`
	Commit         int64                   `json:"commit,omitempty"`
	Changes        []blocktree.BlockChange `json:"changes,omitempty"`
	ReplayComplete bool                    `json:"replayComplete,omitempty"` // Marker that replay is complete
}

// SessionError is an error response.
type SessionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// SessionResponse is the top-level response message (union type).
// Only one of Result, Event, or Error should be set.
type SessionResponse struct {
	ID *string `json:"id,omitempty"` // Matches request ID for async mode

	Result *SessionResult `json:"result,omitempty"`
	Event  *WatchEvent    `json:"event,omitempty"`
	Error  *SessionError  `json:"error,omitempty"`
}

// --- Error codes ---

const (
	ErrCodeSessionClosed   = "session_closed"
	ErrCodeInvalidMessage  = "invalid_message"
	ErrCodeInvalidWatch    = "invalid_watch"
	ErrCodeNotWatching     = "not_watching"
	ErrCodeAlreadyWatching = "already_watching"
	ErrCodeInvalidFilter   = "invalid_filter"
	ErrCodeNotFound        = "not_found"
	ErrCodeInvalidParent   = "invalid_parent"
	ErrCodeCycle           = "cycle"
	ErrCodeBackend         = "backend_error"
)

// ErrorCodeFor maps a store error to its wire code.
func ErrorCodeFor(err error) string {
	switch {
	case blocktree.IsNotFound(err):
		return ErrCodeNotFound
	case blocktree.IsInvalidParent(err):
		return ErrCodeInvalidParent
	case blocktree.IsCycle(err):
		return ErrCodeCycle
	default:
		return ErrCodeBackend
	}
}

// NewSessionError creates a new SessionError.
func NewSessionError(code, message string) *SessionError {
	return &SessionError{
		Code:    code,
		Message: message,
	}
}

// --- Helper constructors ---

// NewHelloResponse creates a response for a hello handshake.
func NewHelloResponse(id *string, serverID, backend, version string) *SessionResponse {
	return &SessionResponse{
		ID: id,
		Result: &SessionResult{
			Hello: &HelloResponse{
				ServerID: serverID,
				Backend:  backend,
				Version:  version,
			},
		},
	}
}

// NewCreateResponse creates a response for a create request.
func NewCreateResponse(id *string, blocks []*blocktree.Block, version string) *SessionResponse {
	return &SessionResponse{
		ID: id,
		Result: &SessionResult{
			Create: &CreateResult{
				Blocks:  blocks,
				Version: version,
			},
		},
	}
}

// NewUpdateResponse creates a response for an update request.
func NewUpdateResponse(id *string, block *blocktree.Block, version string) *SessionResponse {
	return &SessionResponse{
		ID: id,
		Result: &SessionResult{
			Update: &UpdateResult{
				Block:   block,
				Version: version,
			},
		},
	}
}

// NewDeleteResponse creates a response for a delete request.
func NewDeleteResponse(id *string, version string) *SessionResponse {
	return &SessionResponse{
		ID: id,
		Result: &SessionResult{
			Delete: &DeleteResult{
				Version: version,
			},
		},
	}
}

// NewMoveResponse creates a response for a move request.
func NewMoveResponse(id *string, block *blocktree.Block, version string) *SessionResponse {
	return &SessionResponse{
		ID: id,
		Result: &SessionResult{
			Move: &MoveResult{
				Block:   block,
				Version: version,
			},
		},
	}
}

// NewGetResponse creates a response for a get request.
func NewGetResponse(id *string, blocks []*blocktree.Block) *SessionResponse {
	return &SessionResponse{
		ID: id,
		Result: &SessionResult{
			Get: &GetResult{
				Blocks: blocks,
			},
		},
	}
}

// NewListResponse creates a response for a list request.
func NewListResponse(id *string, blocks []*blocktree.Block) *SessionResponse {
	return &SessionResponse{
		ID: id,
		Result: &SessionResult{
			List: &ListResult{
				Blocks: blocks,
			},
		},
	}
}

// NewVersionResponse creates a response for a version request.
func NewVersionResponse(id *string, version string) *SessionResponse {
	return &SessionResponse{
		ID: id,
		Result: &SessionResult{
			Version: &VersionResult{
				Version: version,
			},
		},
	}
}

// NewWatchResponse creates a response for a watch request.
func NewWatchResponse(id *string, name string) *SessionResponse {
	return &SessionResponse{
		ID: id,
		Result: &SessionResult{
			Watch: &WatchResult{
				Watching: name,
			},
		},
	}
}

// NewUnwatchResponse creates a response for an unwatch request.
func NewUnwatchResponse(id *string, name string) *SessionResponse {
	return &SessionResponse{
		ID: id,
		Result: &SessionResult{
			Unwatch: &UnwatchResult{
				Unwatched: name,
			},
		},
	}
}

// NewChangesEvent creates an event carrying block changes.
func NewChangesEvent(watch string, commit int64, changes []blocktree.BlockChange) *SessionResponse {
	return &SessionResponse{
		Event: &WatchEvent{
			Watch:   watch,
			Commit:  commit,
			Changes: changes,
		},
	}
}

// NewReplayCompleteEvent creates a replay complete marker event.
func NewReplayCompleteEvent(watch string) *SessionResponse {
	return &SessionResponse{
		Event: &WatchEvent{
			Watch:          watch,
			ReplayComplete: true,
		},
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id *string, code, message string) *SessionResponse {
	return &SessionResponse{
		ID: id,
		Error: &SessionError{
			Code:    code,
			Message: message,
		},
	}
}
