package task

// statusRank orders the forward workflow. Failed and cancelled sit
// outside the chain and are handled separately.
var statusRank = map[Status]int{
	StatusInbox:      0,
	StatusAssigned:   1,
	StatusInProgress: 2,
	StatusTesting:    3,
	StatusReview:     4,
	StatusDone:       5,
}

// transitions lists the allowed next statuses for each status.
var transitions = map[Status][]Status{
	StatusInbox:      {StatusAssigned, StatusInProgress, StatusCancelled},
	StatusAssigned:   {StatusInbox, StatusInProgress, StatusTesting, StatusCancelled, StatusFailed},
	StatusInProgress: {StatusAssigned, StatusTesting, StatusReview, StatusCancelled, StatusFailed},
	StatusTesting:    {StatusInProgress, StatusReview, StatusCancelled, StatusFailed},
	StatusReview:     {StatusInProgress, StatusTesting, StatusDone, StatusCancelled, StatusFailed},
	StatusDone:       {StatusReview},
	StatusFailed:     {StatusInProgress, StatusCancelled},
	StatusCancelled:  {},
}

// CanTransition reports whether moving from one status to the other is
// a legal workflow step.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Advances reports whether the move is forward progress along the
// workflow chain. Exits to failed/cancelled never count as advancement.
func Advances(from, to Status) bool {
	fr, ok := statusRank[from]
	if !ok {
		return false
	}
	tr, ok := statusRank[to]
	if !ok {
		return false
	}
	return tr > fr
}

// Regresses reports whether the move pulls a task backwards out of
// review or done. Such moves are reserved for approver agents so that
// automated completion signals cannot undo reviewed work.
func Regresses(from, to Status) bool {
	if from != StatusReview && from != StatusDone {
		return false
	}
	if to == StatusCancelled || to == StatusFailed {
		return false
	}
	fr := statusRank[from]
	tr, ok := statusRank[to]
	return ok && tr < fr
}
