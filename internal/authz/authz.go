package authz

import (
	"context"
	"fmt"

	"github.com/Kamar-Folarin/repo-ingest/internal/config"
	"github.com/Kamar-Folarin/repo-ingest/internal/errors"
)

// Action is an operation an actor performs on a namespace.
type Action string

const (
	ActionView      Action = "view"
	ActionImport    Action = "import"
	ActionScan      Action = "scan"
	ActionSync      Action = "sync"
	ActionConfigure Action = "configure"
)

// Authorizer answers whether an actor may perform action on a namespace.
type Authorizer interface {
	CanAct(ctx context.Context, actorID, namespaceID string, action Action) (bool, error)
}

// RequireAny succeeds when the actor may act on at least one namespace.
func RequireAny(ctx context.Context, a Authorizer, actorID string, namespaceIDs []string, action Action) error {
	for _, ns := range namespaceIDs {
		ok, err := a.CanAct(ctx, actorID, ns, action)
		if err != nil {
			return errors.NewInternalError("authorization check failed", err)
		}
		if ok {
			return nil
		}
	}
	return errors.NewForbiddenError(fmt.Sprintf("actor %s may not %s this repository", actorID, action), nil)
}

// RequireAll succeeds only when the actor may act on every namespace.
func RequireAll(ctx context.Context, a Authorizer, actorID string, namespaceIDs []string, action Action) error {
	for _, ns := range namespaceIDs {
		ok, err := a.CanAct(ctx, actorID, ns, action)
		if err != nil {
			return errors.NewInternalError("authorization check failed", err)
		}
		if !ok {
			return errors.NewForbiddenError(fmt.Sprintf("actor %s may not %s in namespace %s", actorID, action, ns), nil)
		}
	}
	return nil
}

type role int

const (
	roleNone role = iota
	roleMember
	roleAdmin
)

// StaticAuthorizer grants superusers everything, namespace admins every
// action in their namespace and members view access.
type StaticAuthorizer struct {
	superusers map[string]bool
	roles      map[string]map[string]role
}

// NewStaticAuthorizer builds an authorizer from configuration.
func NewStaticAuthorizer(cfg config.AuthzConfig) *StaticAuthorizer {
	a := &StaticAuthorizer{
		superusers: make(map[string]bool),
		roles:      make(map[string]map[string]role),
	}
	for _, id := range cfg.Superusers {
		a.superusers[id] = true
	}
	for _, ns := range cfg.Namespaces {
		members := a.roles[ns.ID]
		if members == nil {
			members = make(map[string]role)
			a.roles[ns.ID] = members
		}
		for _, id := range ns.Members {
			if members[id] < roleMember {
				members[id] = roleMember
			}
		}
		for _, id := range ns.Admins {
			members[id] = roleAdmin
		}
	}
	return a
}

func (a *StaticAuthorizer) CanAct(ctx context.Context, actorID, namespaceID string, action Action) (bool, error) {
	if actorID == "" {
		return false, nil
	}
	if a.superusers[actorID] {
		return true, nil
	}
	switch a.roles[namespaceID][actorID] {
	case roleAdmin:
		return true, nil
	case roleMember:
		return action == ActionView, nil
	}
	return false, nil
}
