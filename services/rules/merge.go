package rules

// Merge applies layers over base in order, each non-nil field replacing the
// value below it. Per-type deliverable points merge key by key.
func Merge(base ScoringRules, layers ...*Layer) ScoringRules {
	out := base
	out.PointsPerDeliverableType = make(map[string]int64, len(base.PointsPerDeliverableType))
	for k, v := range base.PointsPerDeliverableType {
		out.PointsPerDeliverableType[k] = v
	}

	for _, l := range layers {
		if l == nil {
			continue
		}
		set(&out.PointsPerDeliverable, l.PointsPerDeliverable)
		set(&out.PointsOnTimeBonus, l.PointsOnTimeBonus)
		set(&out.PointsPer1kViews, l.PointsPer1kViews)
		set(&out.PointsPerLike, l.PointsPerLike)
		set(&out.PointsPerComment, l.PointsPerComment)
		set(&out.PointsPerSale, l.PointsPerSale)
		for k, v := range l.PointsPerDeliverableType {
			out.PointsPerDeliverableType[k] = v
		}
	}
	return out
}

func set(dst *int64, v *int64) {
	if v != nil {
		*dst = *v
	}
}

// MergeCaps resolves caps category by category, later layers winning.
func MergeCaps(layers ...Caps) Caps {
	out := Caps{}
	for _, l := range layers {
		for cat, c := range l {
			out[cat] = c
		}
	}
	return out
}
