package auth

// ResolutionState is the state of a single role resolution attempt.
type ResolutionState string

const (
	// ResolutionUnresolved means neither tier has produced a usable answer yet.
	ResolutionUnresolved ResolutionState = "unresolved"
	// ResolutionProvisionalAdmin means the cache tier found a membership record and the
	// server tier has not answered yet.
	ResolutionProvisionalAdmin ResolutionState = "provisional_admin"
	// ResolutionSettled means the attempt produced its final role.
	ResolutionSettled ResolutionState = "settled"
)

// ResolutionSource identifies which input settled or advanced an attempt.
type ResolutionSource string

const (
	SourceOverride ResolutionSource = "override"
	SourceCache    ResolutionSource = "cache"
	SourceServer   ResolutionSource = "server"
	SourceTimeout  ResolutionSource = "timeout"
)

// RoleUpdate is reported to observers whenever an attempt changes the visible role.
// Final is true exactly once per attempt, when it settles.
type RoleUpdate struct {
	Role   Role
	Final  bool
	Source ResolutionSource
}

// Resolution is the per-attempt state machine behind role resolution:
//
//	Unresolved       --override-->          Settled(admin)
//	Unresolved       --cache hit-->         ProvisionalAdmin
//	Unresolved       --server found-->      Settled(admin)
//	Unresolved       --server missing-->    Settled(user)
//	Unresolved       --timeout-->           Settled(user)
//	ProvisionalAdmin --server found-->      Settled(admin)
//	ProvisionalAdmin --server missing-->    Settled(admin), or Settled(user) when revocation is enabled
//	ProvisionalAdmin --timeout-->           Settled(admin)
//
// Every other input is ignored. A Resolution is not safe for concurrent use; the resolver
// drives it from a single goroutine.
type Resolution struct {
	state             ResolutionState
	role              Role
	revokeProvisional bool
	disagreement      bool
}

// NewResolution starts an attempt. revokeProvisional controls whether a server "not found"
// downgrades a provisional admin grant.
func NewResolution(revokeProvisional bool) *Resolution {
	return &Resolution{state: ResolutionUnresolved, role: RoleUnresolved, revokeProvisional: revokeProvisional}
}

// State returns the current attempt state.
func (r *Resolution) State() ResolutionState { return r.state }

// Role returns the role currently visible for the attempt.
func (r *Resolution) Role() Role { return r.role }

// Settled reports whether the attempt reached its final role.
func (r *Resolution) Settled() bool { return r.state == ResolutionSettled }

// Disagreed reports whether the server denied a membership the cache had granted.
func (r *Resolution) Disagreed() bool { return r.disagreement }

// ObserveOverride settles the attempt as admin through the static allow-list.
func (r *Resolution) ObserveOverride() (RoleUpdate, bool) {
	if r.state != ResolutionUnresolved {
		return RoleUpdate{}, false
	}
	return r.settle(RoleAdmin, SourceOverride), true
}

// ObserveCache applies the cache tier result. A miss never changes the attempt.
func (r *Resolution) ObserveCache(found bool) (RoleUpdate, bool) {
	if r.state != ResolutionUnresolved || !found {
		return RoleUpdate{}, false
	}
	r.state = ResolutionProvisionalAdmin
	r.role = RoleAdmin
	return RoleUpdate{Role: RoleAdmin, Source: SourceCache}, true
}

// ObserveServer applies the authoritative server result. Lookup errors must be passed as
// found=false.
func (r *Resolution) ObserveServer(found bool) (RoleUpdate, bool) {
	switch r.state {
	case ResolutionUnresolved:
		if found {
			return r.settle(RoleAdmin, SourceServer), true
		}
		return r.settle(RoleUser, SourceServer), true
	case ResolutionProvisionalAdmin:
		if found {
			return r.settle(RoleAdmin, SourceServer), true
		}
		r.disagreement = true
		if r.revokeProvisional {
			return r.settle(RoleUser, SourceServer), true
		}
		return r.settle(RoleAdmin, SourceServer), true
	default:
		return RoleUpdate{}, false
	}
}

// ObserveTimeout commits the fail-safe default. It never downgrades a provisional admin.
func (r *Resolution) ObserveTimeout() (RoleUpdate, bool) {
	switch r.state {
	case ResolutionUnresolved:
		return r.settle(RoleUser, SourceTimeout), true
	case ResolutionProvisionalAdmin:
		return r.settle(RoleAdmin, SourceTimeout), true
	default:
		return RoleUpdate{}, false
	}
}

func (r *Resolution) settle(role Role, source ResolutionSource) RoleUpdate {
	r.state = ResolutionSettled
	r.role = role
	return RoleUpdate{Role: role, Final: true, Source: source}
}
