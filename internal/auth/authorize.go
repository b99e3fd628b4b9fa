package auth

// The evaluator is an ordered rule table: the first rule that decides wins.
// The order encodes the tier semantics — in particular, the viewer deny
// sits before any grant lookup so no grant can escalate a viewer.

type verdict int

const (
	verdictSkip verdict = iota
	verdictAllow
	verdictDeny
)

type rule func(u *User, action Action, scope Scope, grants []Grant) verdict

var rules = []rule{
	denyInactive,
	allowSuperuser,
	allowAdmin,
	denyViewer,
	allowBasicUser,
	allowGranted,
}

// basicUserActions is the fixed set the "user" tier may perform without an
// explicit grant.
var basicUserActions = map[Action]struct{}{
	ActionClientModify:     {},
	ActionModuleInstall:    {},
	ActionModuleUninstall:  {},
	ActionWorkflowGenerate: {},
	ActionChangeFile:       {},
}

// Authorize evaluates whether the user may perform the action in the given
// scope. It is a pure function over the user, its active grants and the rule
// table; undecided falls through to deny.
func Authorize(u *User, action Action, scope Scope, grants []Grant) bool {
	for _, r := range rules {
		switch r(u, action, scope, grants) {
		case verdictAllow:
			return true
		case verdictDeny:
			return false
		}
	}
	return false
}

func denyInactive(u *User, _ Action, _ Scope, _ []Grant) verdict {
	if u == nil || !u.IsActive {
		return verdictDeny
	}
	return verdictSkip
}

func allowSuperuser(u *User, _ Action, _ Scope, _ []Grant) verdict {
	if u.IsSuperuser || u.Role == RoleSuperuser {
		return verdictAllow
	}
	return verdictSkip
}

func allowAdmin(u *User, _ Action, _ Scope, _ []Grant) verdict {
	if u.Role == RoleAdmin {
		return verdictAllow
	}
	return verdictSkip
}

// denyViewer is the absolute floor: viewers never mutate, grants included.
func denyViewer(u *User, _ Action, _ Scope, _ []Grant) verdict {
	if u.Role == RoleViewer {
		return verdictDeny
	}
	return verdictSkip
}

func allowBasicUser(u *User, action Action, _ Scope, _ []Grant) verdict {
	if u.Role != RoleUser {
		return verdictSkip
	}
	if _, ok := basicUserActions[action]; ok {
		return verdictAllow
	}
	return verdictSkip
}

func allowGranted(u *User, action Action, scope Scope, grants []Grant) verdict {
	for _, g := range grants {
		if g.UserID == u.ID && g.Matches(action, scope) {
			return verdictAllow
		}
	}
	return verdictSkip
}
