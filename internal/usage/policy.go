package usage

// Policy is the admission gate every inbound message must pass before
// it is relayed to the assistant. A message is admitted only if all
// three limits (daily messages, monthly messages, monthly tokens) have
// headroom; one exhausted limit rejects the request regardless of the
// other two.
type Policy struct {
	store *Store
}

func NewPolicy(store *Store) *Policy {
	return &Policy{store: store}
}

func (p *Policy) Admit(userID int64) (bool, error) {
	return p.store.CheckAdmission(userID)
}
