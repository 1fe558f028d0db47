package lookup

import (
	"context"
	"fmt"

	"github.com/james-lawrence/kadproviders/cstate"
	"github.com/james-lawrence/kadproviders/kad"
)

// phase is a state awaiting resolution of a single query.
type phase interface {
	cstate.T
	query() kad.QueryID
	kind() string
}

// prepopulating waits on a FIND_NODE walk, remaining walks follow it.
type prepopulating struct {
	*Orchestrator
	remaining uint
	active    kad.QueryID
}

func (t prepopulating) Update(ctx context.Context, _ *cstate.Shared) cstate.T {
	return t.await(ctx, t)
}

func (t prepopulating) query() kad.QueryID {
	return t.active
}

func (t prepopulating) kind() string {
	return kad.KindFindNode
}

func (t prepopulating) String() string {
	return fmt.Sprintf("prepopulating(remaining=%d, %s)", t.remaining, t.active)
}

// awaiting waits on the GET_PROVIDERS query, it is never left for prepopulating.
type awaiting struct {
	*Orchestrator
	active kad.QueryID
}

func (t awaiting) Update(ctx context.Context, _ *cstate.Shared) cstate.T {
	return t.await(ctx, t)
}

func (t awaiting) query() kad.QueryID {
	return t.active
}

func (t awaiting) kind() string {
	return kad.KindGetProviders
}

func (t awaiting) String() string {
	return fmt.Sprintf("awaiting providers(%s)", t.active)
}
