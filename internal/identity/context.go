package identity

import "sync"

// Context holds the player and server state shared between the ingestion
// pipeline and readers such as the status monitor.
type Context struct {
	mu      sync.RWMutex
	details Details
}

// NewContext creates a Context with no server and the default team.
func NewContext() *Context {
	return &Context{details: Details{Team: DefaultTeam}}
}

// SetPlayer sets the local player's display name and login.
func (c *Context) SetPlayer(name, login string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.details.PlayerName = name
	c.details.PlayerLogin = login
}

// SetServer sets the current server and team.
func (c *Context) SetServer(server, team string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.details.Server = server
	c.details.Team = team
}

// Set replaces all details in one hold, so readers never see a player
// paired with the previous server.
func (c *Context) Set(d Details) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.details = d
}

// ClearServer resets server and team after the player leaves.
func (c *Context) ClearServer() {
	c.SetServer("", DefaultTeam)
}

// Snapshot returns a copy of the current details.
func (c *Context) Snapshot() Details {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.details
}
