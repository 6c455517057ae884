package filter

import (
	"context"
	"slices"

	zlog "github.com/rs/zerolog/log"
)

// Chain is an ordered list of filters. The first rejection wins.
type Chain struct {
	filters []Filter
}

// NewChain creates an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// Add appends f; it runs after every filter added before it.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute checks req against the filters that apply to origin.
// A rejected result names the filter that produced it.
func (c *Chain) Execute(ctx context.Context, req AddRequest, origin Origin) Result {
	for _, f := range c.filters {
		if !f.AppliesTo(origin) {
			continue
		}
		if r := f.Check(ctx, req); !r.Accepted {
			r.Filter = f.Name()
			zlog.Debug().Msgf("filter: rejected by %s: playlist=%s song=%s code=%s",
				r.Filter, req.Playlist.ID, req.Song.ID, r.Code)
			return r
		}
	}
	return Accept()
}

// Filters returns a copy of the filters in execution order.
func (c *Chain) Filters() []Filter {
	return slices.Clone(c.filters)
}
