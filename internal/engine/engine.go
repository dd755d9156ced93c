package engine

import (
	"context"
	"errors"
	"fmt"

	"sinout-engine/internal/emotion"
	"sinout-engine/internal/models"

	"go.uber.org/zap"
)

// ErrInvalidRule 规则本身不合法（阈值越界等）
// 不合法的规则只从候选中剔除，不中断整次评估
var ErrInvalidRule = errors.New("invalid rule")

// Engine 规则引擎
// 对一条检测结果在当前规则快照上做匹配，最多选出一条触发规则。
// 只写 CooldownTracker，从不修改规则快照和存储
type Engine struct {
	cooldown *CooldownTracker
	logger   *zap.Logger
}

// NewEngine 创建规则引擎
func NewEngine(cooldown *CooldownTracker, logger *zap.Logger) *Engine {
	return &Engine{
		cooldown: cooldown,
		logger:   logger,
	}
}

// Evaluate 评估一条检测结果
// 候选条件：规则启用 && 情绪等于主导情绪 && 主导百分比达到阈值
// 多个候选时取 Priority 最大者，Priority 相同取 CreatedAt 最新者，保证结果确定
func (e *Engine) Evaluate(ctx context.Context, det *models.Detection, snapshot []models.Rule) (*models.MatchResult, error) {
	// 入口防线：得分表必须完整且在范围内
	if err := emotion.ValidateScores(det.Scores); err != nil {
		return nil, err
	}

	winner := e.selectRule(det, snapshot)
	if winner == nil {
		return &models.MatchResult{}, nil
	}

	// 冷却检查：窗口内的重复触发记为"匹配但被抑制"，不发消息也不刷新冷却时间
	inCooldown, err := e.cooldown.InCooldown(ctx, det.SubjectID, winner.RuleID)
	if err != nil {
		// 冷却状态不可用时放行触发：漏掉一次抑制好过漏掉一次报警
		e.logger.Warn("Cooldown state unavailable, allowing fire",
			zap.String("subject_id", det.SubjectID),
			zap.String("rule_id", winner.RuleID),
			zap.Error(err),
		)
	}
	if inCooldown {
		e.logger.Debug("Rule matched but suppressed by cooldown",
			zap.String("subject_id", det.SubjectID),
			zap.String("rule_id", winner.RuleID),
		)
		return &models.MatchResult{
			Suppressed: true,
			RuleID:     winner.RuleID,
		}, nil
	}

	if err := e.cooldown.MarkFired(ctx, det.SubjectID, winner.RuleID, det.Timestamp); err != nil {
		e.logger.Warn("Failed to record cooldown state",
			zap.String("subject_id", det.SubjectID),
			zap.String("rule_id", winner.RuleID),
			zap.Error(err),
		)
		// 触发仍然成立，只是下一次可能不会被抑制
	}

	e.logger.Info("Rule fired",
		zap.String("subject_id", det.SubjectID),
		zap.String("rule_id", winner.RuleID),
		zap.String("emotion", det.DominantEmotion),
		zap.Float64("percent", det.DominantPercent),
	)

	return &models.MatchResult{
		Fired:   true,
		RuleID:  winner.RuleID,
		Message: winner.Message,
	}, nil
}

// selectRule 在快照中选出唯一的获胜规则，无候选时返回 nil
func (e *Engine) selectRule(det *models.Detection, snapshot []models.Rule) *models.Rule {
	var winner *models.Rule
	for i := range snapshot {
		rule := &snapshot[i]
		if !rule.Active {
			continue
		}
		if err := validateRule(rule); err != nil {
			// 单条规则不合法只剔除该条，继续用剩余规则评估
			e.logger.Warn("Excluding invalid rule from evaluation",
				zap.String("rule_id", rule.RuleID),
				zap.Error(err),
			)
			continue
		}
		if rule.Emotion != det.DominantEmotion {
			continue
		}
		if det.DominantPercent < rule.MinPercent {
			continue
		}

		if winner == nil {
			winner = rule
			continue
		}
		if rule.Priority > winner.Priority {
			winner = rule
			continue
		}
		if rule.Priority == winner.Priority && rule.CreatedAt.After(winner.CreatedAt) {
			winner = rule
		}
	}
	return winner
}

// validateRule 校验单条规则
func validateRule(rule *models.Rule) error {
	if rule.MinPercent < 0 || rule.MinPercent > 100 {
		return fmt.Errorf("%w: min_percent out of range: %v", ErrInvalidRule, rule.MinPercent)
	}
	if !emotion.IsValid(rule.Emotion) {
		return fmt.Errorf("%w: unknown emotion %q", ErrInvalidRule, rule.Emotion)
	}
	return nil
}
