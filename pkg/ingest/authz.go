package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// GroupAuthorizer grants identities write access to groups. A grant on
// org.acme covers org.acme and every group below it (org.acme.tools).
type GroupAuthorizer struct {
	mu     sync.RWMutex
	grants map[Identity][]string
}

// NewGroupAuthorizer creates an authorizer from identity -> groups grants
func NewGroupAuthorizer(grants map[Identity][]string) *GroupAuthorizer {
	a := &GroupAuthorizer{grants: make(map[Identity][]string)}
	for who, groups := range grants {
		for _, g := range groups {
			a.Grant(who, g)
		}
	}
	return a
}

// Grant adds write access for who under group
func (a *GroupAuthorizer) Grant(who Identity, group string) {
	group = NormalizeGroup(group)
	if group == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.grants[who] = append(a.grants[who], group)
}

// Authorize implements Authorizer
func (a *GroupAuthorizer) Authorize(ctx context.Context, who Identity, group string) error {
	if who.IsAnonymous() {
		return fmt.Errorf("%w: authentication required", ErrUnauthorized)
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, g := range a.grants[who] {
		if group == g || strings.HasPrefix(group, g+".") {
			return nil
		}
	}
	return fmt.Errorf("%w: %s may not deploy to group %s", ErrUnauthorized, who, group)
}

// AuthenticatedAuthorizer allows any non-anonymous identity to write anywhere.
// Useful for development setups without group grants.
type AuthenticatedAuthorizer struct{}

// Authorize implements Authorizer
func (AuthenticatedAuthorizer) Authorize(ctx context.Context, who Identity, group string) error {
	if who.IsAnonymous() {
		return fmt.Errorf("%w: authentication required", ErrUnauthorized)
	}
	return nil
}
