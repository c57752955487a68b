package idgen

import (
	"fmt"

	"smallbiznis-gamification/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("idgen", fx.Provide(NewNode))

// NewNode returns the snowflake node of this process. Every running replica
// needs its own APP_NODE_ID, otherwise two processes can mint the same id in
// the same millisecond.
func NewNode(cfg *config.Config) (*snowflake.Node, error) {
	limit := int64(-1 ^ (-1 << snowflake.NodeBits))
	if cfg.NodeID < 0 || cfg.NodeID > limit {
		return nil, fmt.Errorf("APP_NODE_ID %d out of range [0, %d]", cfg.NodeID, limit)
	}

	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, err
	}
	zap.L().Info("snowflake node ready", zap.Int64("node_id", cfg.NodeID))
	return node, nil
}
