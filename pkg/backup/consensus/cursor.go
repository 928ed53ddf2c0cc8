package consensus

// EndpointCursor rotates through a fixed list of candidate consensus
// endpoints, advancing by one on every call to Next so repeated query
// attempts spread across the cluster rather than hammering one member.
// Grounded on the original's clusterConsensusEndpointsCursor field: a plain
// int index incremented and wrapped, reset to unset on a fresh backup
// attempt.
type EndpointCursor struct {
	endpoints []string
	index     int
	started   bool
}

// NewEndpointCursor builds a cursor over the given endpoint list. The list
// is not copied; callers should not mutate it afterwards.
func NewEndpointCursor(endpoints []string) *EndpointCursor {
	return &EndpointCursor{endpoints: endpoints}
}

// Next returns the next candidate endpoint in round-robin order. It panics
// if the cursor was built with no endpoints, since that is a configuration
// error the caller must not recover from mid-loop.
func (c *EndpointCursor) Next() string {
	if len(c.endpoints) == 0 {
		panic("consensus: endpoint cursor has no candidate endpoints")
	}

	if !c.started {
		c.started = true
		c.index = 0
	} else {
		c.index++
		if c.index >= len(c.endpoints) {
			c.index = 0
		}
	}

	return c.endpoints[c.index]
}

// Reset rewinds the cursor so the next call to Next starts back at the
// first endpoint. Called when starting a fresh backup query attempt.
func (c *EndpointCursor) Reset() {
	c.started = false
	c.index = 0
}

// Current returns the endpoint most recently returned by Next, and false if
// Next has never been called since the last Reset.
func (c *EndpointCursor) Current() (string, bool) {
	if !c.started {
		return "", false
	}
	return c.endpoints[c.index], true
}
