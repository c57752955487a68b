package rediskey

import "fmt"

const (
	SequencePrefix     = "seq"
	ScoringRulesPrefix = "gamification:rules"
	RankLockPrefix     = "gamification:ranks"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildSequenceKey returns "seq:{prefix}:{companyID}:{day}"
func BuildSequenceKey(prefix string, companyID int64, day string) string {
	return NamespaceKey(SequencePrefix, fmt.Sprintf("%s:%d:%s", prefix, companyID, day))
}

// BuildScoringRulesKey returns "gamification:rules:{companyID}:{campaignID}"
func BuildScoringRulesKey(companyID, campaignID int64) string {
	return NamespaceKey(ScoringRulesPrefix, fmt.Sprintf("%d:%d", companyID, campaignID))
}

// BuildRankTaskID returns "gamification:ranks:{campaignID}", used as the
// asynq task id so pending recalculations of one campaign collapse.
func BuildRankTaskID(campaignID int64) string {
	return NamespaceKey(RankLockPrefix, fmt.Sprintf("%d", campaignID))
}
