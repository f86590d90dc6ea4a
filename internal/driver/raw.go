package driver

// Raw is the no-handshake driver. It denotes a TCP tunnel appliance
// that already points at a fixed destination: the chain engine still
// counts this as a hop, but nothing is written to or read from the
// stream here (spec.md §4.1).
type Raw struct{}

func (Raw) Handshake(_ Stream, _ Handshake) error { return nil }
