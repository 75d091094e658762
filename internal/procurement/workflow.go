package procurement

import "github.com/procurio/procurio/internal/identity"

// transitions is the canonical five-state graph. Terminal statuses have no
// outbound edges; cancellation is reachable from WAITING and APPROVED only.
var transitions = map[Status][]Status{
	StatusWaiting:  {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved: {StatusPaid, StatusCancelled},
}

// CanTransition reports whether the edge from -> to exists in the graph.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanReview reports whether the role may move a request through the workflow.
func CanReview(role identity.Role) bool {
	return role == identity.RoleAccountant || role == identity.RoleAdmin
}

// CanCreate reports whether the role may submit a new request.
func CanCreate(role identity.Role) bool {
	switch role {
	case identity.RoleEmployee, identity.RoleManager, identity.RoleAccountant, identity.RoleAdmin:
		return true
	}
	return false
}

// Authorize validates a transition attempt. The role guard is checked before
// the graph: a caller who may not review at all gets ErrPermission even for
// an edge that does not exist.
func Authorize(role identity.Role, from, to Status) error {
	if !CanReview(role) {
		return ErrPermission
	}
	if !CanTransition(from, to) {
		return ErrInvalidTransition
	}
	return nil
}
