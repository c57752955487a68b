package taskname

const (
	// Campaign ranking
	RecalculateRanks = "gamification:recalculate_ranks"

	// Reconciliation
	ReconcileBrand = "gamification:reconcile_brand"
	ReconcileAll   = "gamification:reconcile_all"
)
