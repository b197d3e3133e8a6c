package orders

import (
	"tow-dispatch/internal/domain/order"
	"tow-dispatch/internal/domain/user"
)

// edge is one arrow in the order status graph.
type edge struct {
	from order.Status
	to   order.Status
}

// legalTransitions is the single legality table consulted by Advance: which
// actor roles may request which edge. Edges absent from the table are
// illegal for everyone; the graph itself (no skipped states, terminal states
// closed) is already encoded in Status.CanTransitionTo and mirrored here.
//
// The SYSTEM actor drives the automatic edges: search start, matching and
// no-capacity cancellation.
var legalTransitions = map[edge][]user.Role{
	{order.StatusCreated, order.StatusSearching}: {user.RoleSystem},

	{order.StatusSearching, order.StatusAssigned}: {user.RoleSystem},

	// only the assigned driver starts the tow; the driver identity check
	// happens in Advance, the table only gates the role
	{order.StatusAssigned, order.StatusInProgress}: {user.RoleDriver},

	{order.StatusInProgress, order.StatusCompleted}: {user.RoleDriver, user.RoleOperator},

	{order.StatusCreated, order.StatusCancelled}:   {user.RoleClient, user.RoleOperator, user.RoleSystem},
	{order.StatusSearching, order.StatusCancelled}: {user.RoleClient, user.RoleOperator, user.RoleSystem},
	{order.StatusAssigned, order.StatusCancelled}:  {user.RoleClient, user.RoleDriver, user.RoleOperator, user.RoleSystem},
}

// transitionAllowed reports whether role may move an order from -> to.
func transitionAllowed(from, to order.Status, role user.Role) bool {
	roles, ok := legalTransitions[edge{from: from, to: to}]
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
