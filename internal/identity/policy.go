package identity

import "fmt"

// Pusher is the part of the link adapter the policy drives.
type Pusher interface {
	Nonce() uint64
	SetIdentityAndContext(identity string, context []byte) error
}

// Policy turns Details into identity and context strings.
type Policy struct {
	// ObfuscateServer runs Server through Obfuscate before it is placed in
	// the context. The socket plugin already sends an obfuscated id.
	ObfuscateServer bool
}

// Build returns the identity and context strings for d at nonce.
func (p Policy) Build(d Details, nonce uint64) (identity, context string) {
	server := d.Server
	if p.ObfuscateServer {
		server = Obfuscate(server)
	}
	return FormatIdentity(d.PlayerName, d.PlayerLogin, nonce), FormatContext(server, d.Team)
}

// Push builds the pair at the target's current nonce and applies it.
func (p Policy) Push(target Pusher, d Details) (identity, context string, err error) {
	identity, context = p.Build(d, target.Nonce())
	if err := target.SetIdentityAndContext(identity, []byte(context)); err != nil {
		return identity, context, fmt.Errorf("failed to push identity: %w", err)
	}
	return identity, context, nil
}
