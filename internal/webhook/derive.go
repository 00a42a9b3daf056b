package webhook

// DeriveStatus computes a parent's aggregate status from its children. The
// rule is the same at every level of the tree: all completed wins outright,
// a fully-terminal set with any success still counts as completed
// (any-success wins over any-failure), and only a fully-failed terminal set
// is failed. Anything else is still in progress.
func DeriveStatus(children []RequestStatus) RequestStatus {
	if len(children) == 0 {
		return StatusPending
	}
	allTerminal := true
	anyCompleted := false
	anyStarted := false
	for _, s := range children {
		if !s.Terminal() {
			allTerminal = false
		}
		if s == StatusCompleted {
			anyCompleted = true
		}
		if s != StatusPending {
			anyStarted = true
		}
	}
	if allTerminal {
		if anyCompleted {
			return StatusCompleted
		}
		return StatusFailed
	}
	if anyStarted {
		return StatusProcessing
	}
	return StatusPending
}
