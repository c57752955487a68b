package campaign

import (
	"smallbiznis-gamification/services/rules"

	"go.uber.org/fx"
)

var Module = fx.Module("campaign.service",
	fx.Provide(
		NewService,
		func(s *Service) rules.CampaignSource { return s },
	),
)
