package register

import "fmt"

// BalanceView is one observation of a user's replicated credit balance.
// The zero value is the baseline every quorum read starts from.
type BalanceView struct {
	Tag   int64 `json:"tag"`
	Value int   `json:"value"`
}

// Merge returns the view with the strictly greater tag. On a tie the
// receiver wins; correct replicas never hold different values for one tag.
func (v BalanceView) Merge(other BalanceView) BalanceView {
	if other.Tag > v.Tag {
		return other
	}
	return v
}

// MergeAll folds views into the baseline in the given order.
func MergeAll(views ...BalanceView) BalanceView {
	var best BalanceView
	for _, view := range views {
		best = best.Merge(view)
	}
	return best
}

// String returns a compact representation for logs.
func (v BalanceView) String() string {
	return fmt.Sprintf("{tag:%d value:%d}", v.Tag, v.Value)
}
