package api

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/blocktree-io/blocktree"
)

func TestSessionRequest_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, req *SessionRequest)
	}{
		{
			name:  "hello sync",
			input: `{"hello": {"clientId": "test-client"}}`,
			check: func(t *testing.T, req *SessionRequest) {
				if req.ID != nil {
					t.Errorf("expected nil ID, got %v", *req.ID)
				}
				if req.Hello == nil || req.Hello.ClientID != "test-client" {
					t.Errorf("expected hello with clientId, got %+v", req.Hello)
				}
			},
		},
		{
			name:  "create async",
			input: `{"id": "req-1", "create": {"blocks": [{"id": "a", "content": "alpha"}]}}`,
			check: func(t *testing.T, req *SessionRequest) {
				if req.ID == nil || *req.ID != "req-1" {
					t.Errorf("expected id req-1, got %v", req.ID)
				}
				if req.Create == nil || len(req.Create.Blocks) != 1 {
					t.Fatalf("expected one new block, got %+v", req.Create)
				}
				nb := req.Create.Blocks[0]
				if nb.ID != "a" || nb.ParentID != "" || nb.Content != "alpha" {
					t.Errorf("unexpected new block %+v", nb)
				}
			},
		},
		{
			name:  "move with append position",
			input: `{"move": {"id": "a", "parentId": "__root__", "at": -1}}`,
			check: func(t *testing.T, req *SessionRequest) {
				if req.Move == nil || req.Move.At != blocktree.AtEnd {
					t.Errorf("expected move at end, got %+v", req.Move)
				}
			},
		},
		{
			name:  "list with traversal and filter",
			input: `{"list": {"traversal": {"minDepth": 1, "maxDepth": 1}, "filter": "content != \"\""}}`,
			check: func(t *testing.T, req *SessionRequest) {
				if req.List == nil || req.List.Traversal == nil {
					t.Fatalf("expected list with traversal, got %+v", req.List)
				}
				if req.List.Traversal.MaxDepth != 1 {
					t.Errorf("expected maxDepth 1, got %d", req.List.Traversal.MaxDepth)
				}
				if req.List.Filter == "" {
					t.Error("expected filter expression")
				}
			},
		},
		{
			name:  "watch with since token",
			input: `{"watch": {"name": "w0", "since": "AAEC"}}`,
			check: func(t *testing.T, req *SessionRequest) {
				if req.Watch == nil || req.Watch.Name != "w0" || req.Watch.Since != "AAEC" {
					t.Errorf("unexpected watch request %+v", req.Watch)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var req SessionRequest
			if err := json.Unmarshal([]byte(tc.input), &req); err != nil {
				t.Fatalf("failed to parse request: %v", err)
			}
			tc.check(t, &req)

			// Re-encode and parse again; the result must survive.
			data, err := json.Marshal(&req)
			if err != nil {
				t.Fatalf("failed to encode request: %v", err)
			}
			var again SessionRequest
			if err := json.Unmarshal(data, &again); err != nil {
				t.Fatalf("failed to reparse request: %v", err)
			}
			tc.check(t, &again)
		})
	}
}

func TestSessionResponse_EventEncoding(t *testing.T) {
	resp := NewChangesEvent("w0", 7, []blocktree.BlockChange{
		{Kind: blocktree.ChangeCreated, ID: "a", Origin: blocktree.OriginLocal, Data: &blocktree.Block{ID: "a", ParentID: blocktree.RootID}},
	})

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("failed to encode event: %v", err)
	}

	var decoded SessionResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if decoded.Event == nil {
		t.Fatal("expected event")
	}
	if decoded.Event.Watch != "w0" || decoded.Event.Commit != 7 {
		t.Errorf("unexpected event header %+v", decoded.Event)
	}
	if len(decoded.Event.Changes) != 1 || decoded.Event.Changes[0].Kind != blocktree.ChangeCreated {
		t.Errorf("unexpected changes %+v", decoded.Event.Changes)
	}
	if decoded.Event.ReplayComplete {
		t.Error("changes event must not carry the replay marker")
	}

	marker := NewReplayCompleteEvent("w0")
	data, err = json.Marshal(marker)
	if err != nil {
		t.Fatalf("failed to encode marker: %v", err)
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to decode marker: %v", err)
	}
	if decoded.Event == nil || !decoded.Event.ReplayComplete {
		t.Errorf("expected replay complete marker, got %+v", decoded.Event)
	}
}

func TestSessionError_Error(t *testing.T) {
	e := NewSessionError(ErrCodeNotFound, "no block x")
	if got, want := e.Error(), "not_found: no block x"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	var nilErr *SessionError
	if nilErr.Error() != "" {
		t.Error("nil error should render empty")
	}
	if (&SessionError{Message: "plain"}).Error() != "plain" {
		t.Error("codeless error should render message only")
	}
}

func TestErrorCodeFor(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&blocktree.NotFoundError{ID: "x"}, ErrCodeNotFound},
		{&blocktree.InvalidParentError{ParentID: "y"}, ErrCodeInvalidParent},
		{&blocktree.CycleError{ID: "x", NewParentID: "y"}, ErrCodeCycle},
		{&blocktree.BackendError{Op: "watch", Err: errors.New("boom")}, ErrCodeBackend},
		{errors.New("anything else"), ErrCodeBackend},
	}
	for _, tc := range tests {
		if got := ErrorCodeFor(tc.err); got != tc.want {
			t.Errorf("ErrorCodeFor(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
