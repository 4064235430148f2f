package storetest

import (
	"fmt"

	"pgregory.net/rapid"

	"github.com/blocktree-io/blocktree"
)

// Weighted operation mix for property runs. Creation dominates so trees
// grow; the structural operations keep churn high. A few draws target
// missing ids or the root to keep the rejection paths honest on both
// sides.
var stepActions = []string{
	"create", "create", "create", "create", "create", "create",
	"update", "update", "update", "update",
	"delete", "delete", "delete",
	"move", "move", "move",
	"createBatch", "createBatch",
	"deleteBatch", "deleteBatch",
	"watch",
	"unwatch",
	"cloneProbe",
}

// missingID is drawn alongside live ids so NotFound and InvalidParent
// rejections happen during replay; it is never created.
const missingID = "zz-missing"

var (
	contentGen = rapid.StringMatching(`[A-Za-z0-9 .,!?#]{0,24}`)
	poolIDGen  = rapid.StringMatching(`b[0-9]`)
	newIDGen   = rapid.OneOf(rapid.Just(""), poolIDGen)
)

// Step draws one weighted operation and applies it through the harness.
// While the tree is empty only creates and watcher commands fire.
func (h *Harness) Step(t *rapid.T) {
	action := rapid.SampledFrom(stepActions).Draw(t, "action")
	alive := h.aliveRefIDs()
	if len(alive) == 0 {
		switch action {
		case "watch", "unwatch", "cloneProbe", "createBatch":
		default:
			action = "create"
		}
	}

	switch action {
	case "create":
		h.CreateBlock(newIDGen.Draw(t, "id"), h.drawParent(t, alive), contentGen.Draw(t, "content"))
	case "update":
		h.UpdateBlock(h.drawTarget(t, alive), contentGen.Draw(t, "content"))
	case "delete":
		h.DeleteBlock(h.drawTarget(t, alive))
	case "move":
		at := rapid.IntRange(blocktree.AtEnd, len(alive)).Draw(t, "at")
		h.MoveBlock(h.drawTarget(t, alive), h.drawParent(t, alive), at)
	case "createBatch":
		n := rapid.IntRange(1, 4).Draw(t, "n")
		batch := make([]blocktree.NewBlock, 0, n)
		for i := 0; i < n; i++ {
			batch = append(batch, blocktree.NewBlock{
				ID:       newIDGen.Draw(t, fmt.Sprintf("batchID%d", i)),
				ParentID: h.drawParent(t, alive),
				Content:  contentGen.Draw(t, fmt.Sprintf("batchContent%d", i)),
			})
		}
		h.CreateBlocks(batch)
	case "deleteBatch":
		n := rapid.IntRange(1, 3).Draw(t, "n")
		ids := make([]string, 0, n)
		for i := 0; i < n; i++ {
			ids = append(ids, h.drawTarget(t, alive))
		}
		h.DeleteBlocks(ids)
	case "watch":
		h.WatchChanges(fmt.Sprintf("w%d", h.step))
	case "unwatch":
		if len(h.watchers) > 0 {
			h.UnwatchChanges(rapid.IntRange(0, len(h.watchers)-1).Draw(t, "watcher"))
		}
	case "cloneProbe":
		h.CloneProbe()
	}
}

func (h *Harness) drawParent(t *rapid.T, alive []string) string {
	opts := make([]string, 0, len(alive)+3)
	opts = append(opts, blocktree.RootID, "", missingID)
	opts = append(opts, alive...)
	return rapid.SampledFrom(opts).Draw(t, "parent")
}

func (h *Harness) drawTarget(t *rapid.T, alive []string) string {
	opts := make([]string, 0, len(alive)+2)
	opts = append(opts, alive...)
	opts = append(opts, missingID, blocktree.RootID)
	return rapid.SampledFrom(opts).Draw(t, "target")
}
