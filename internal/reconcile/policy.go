package reconcile

// Policy tunes the heuristic safety guards applied before confirming a deletion.
// The thresholds are operator policy rather than hard invariants.
type Policy struct {
	CrossCategoryGuard bool
	SymmetricSizeGuard bool
	MassDeletionGuard  bool
	// MassDeletionMinOriginal is the category size that must be exceeded before
	// removing every slot of that category is treated as suspicious.
	MassDeletionMinOriginal int
}

// DefaultPolicy enables every guard with the stock mass-deletion threshold.
func DefaultPolicy() Policy {
	return Policy{
		CrossCategoryGuard:      true,
		SymmetricSizeGuard:      true,
		MassDeletionGuard:       true,
		MassDeletionMinOriginal: 2,
	}
}
