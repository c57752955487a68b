package rules

import (
	"time"

	"smallbiznis-gamification/services/ledger"
)

// contentType is the deliverable type implied by a content event.
var contentType = map[ledger.EventType]string{
	ledger.EventPostCreated:  "post",
	ledger.EventReelCreated:  "reel",
	ledger.EventStoryCreated: "story",
}

// Price converts an event into a signed point delta.
//
// Event types without a rule (admin adjustments, quality bonuses, course
// completions, community joins, milestone rewards) carry their delta in
// quantity directly. Late penalties are always negative.
func Price(r ScoringRules, eventType ledger.EventType, quantity int64, metadata map[string]any) int64 {
	switch eventType {
	case ledger.EventDeliveryApproved, ledger.EventPostCreated, ledger.EventReelCreated, ledger.EventStoryCreated:
		return atLeastOne(quantity) * deliverablePoints(r, eventType, metadata)
	case ledger.EventOnTimeBonus:
		return r.PointsOnTimeBonus
	case ledger.EventViewsMilestone:
		if quantity <= 0 {
			return 0
		}
		return (quantity / 1000) * r.PointsPer1kViews
	case ledger.EventLikeMilestone:
		return nonNegative(quantity) * r.PointsPerLike
	case ledger.EventCommentMilestone:
		return nonNegative(quantity) * r.PointsPerComment
	case ledger.EventSaleConfirmed:
		return atLeastOne(quantity) * r.PointsPerSale
	case ledger.EventPenaltyLate:
		if quantity < 0 {
			return quantity
		}
		return -quantity
	default:
		return quantity
	}
}

func deliverablePoints(r ScoringRules, eventType ledger.EventType, metadata map[string]any) int64 {
	kind, _ := metadata["deliverable_type"].(string)
	if kind == "" {
		kind = contentType[eventType]
	}
	if pts, ok := r.PointsPerDeliverableType[kind]; ok && kind != "" {
		return pts
	}
	return r.PointsPerDeliverable
}

func atLeastOne(q int64) int64 {
	if q < 1 {
		return 1
	}
	return q
}

func nonNegative(q int64) int64 {
	if q < 0 {
		return 0
	}
	return q
}

// CategoryOf maps an event type to the cap category it counts against.
// Adjustments, penalties and milestone rewards are never capped.
func CategoryOf(eventType ledger.EventType) (Category, bool) {
	switch eventType {
	case ledger.EventDeliveryApproved, ledger.EventPostCreated, ledger.EventReelCreated, ledger.EventStoryCreated:
		return CategoryDeliverable, true
	case ledger.EventViewsMilestone:
		return CategoryViews, true
	case ledger.EventLikeMilestone, ledger.EventCommentMilestone:
		return CategoryEngagement, true
	case ledger.EventSaleConfirmed:
		return CategorySales, true
	case ledger.EventOnTimeBonus, ledger.EventQualityBonus, ledger.EventCourseCompleted, ledger.EventCommunityJoined:
		return CategoryBonus, true
	}
	return "", false
}

// EventTypesOf lists the event types counted by a category.
func EventTypesOf(c Category) []ledger.EventType {
	var out []ledger.EventType
	for _, et := range []ledger.EventType{
		ledger.EventPostCreated, ledger.EventReelCreated, ledger.EventStoryCreated,
		ledger.EventViewsMilestone, ledger.EventLikeMilestone, ledger.EventCommentMilestone,
		ledger.EventSaleConfirmed, ledger.EventDeliveryApproved, ledger.EventCourseCompleted,
		ledger.EventOnTimeBonus, ledger.EventQualityBonus, ledger.EventCommunityJoined,
	} {
		if cat, ok := CategoryOf(et); ok && cat == c {
			out = append(out, et)
		}
	}
	return out
}

// PeriodStart returns the inclusive start of the cap window containing now.
// Windows are UTC calendar periods; weeks start on Monday. The campaign
// period has no lower bound.
func PeriodStart(p Period, now time.Time) time.Time {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch p {
	case PeriodDay:
		return day
	case PeriodWeek:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case PeriodMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Time{}
	}
}

// Clamp limits a positive delta to what is left under the cap given the
// points already earned in the window. Negative deltas pass through.
func Clamp(delta int64, c Cap, used int64) int64 {
	if delta <= 0 {
		return delta
	}
	remaining := c.MaxPoints - used
	if remaining <= 0 {
		return 0
	}
	if delta > remaining {
		return remaining
	}
	return delta
}
