package registry

// TierEvent describes a lifecycle transition of one store.
type TierEvent struct {
	Kind     Kind
	State    State
	Configs  int
	Failures int
	// Entry is set on per-unit failures.
	Entry string
	Err   error
}
