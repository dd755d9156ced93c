package emotion

import (
	"errors"
	"fmt"
	"time"

	"sinout-engine/internal/models"
)

// ErrInvalidDetection 分类器输入不合法（丢弃计数，不重试）
var ErrInvalidDetection = errors.New("invalid detection")

// Normalize 校验并规范化一条原始分类器输出
// - 原始输入缺少的词表情绪补 0（分类器对该情绪无置信度）
// - 完全没有得分的输入视为分类器故障，直接失败
// - 得分超出 [0,100] 的输入直接失败，不做截断（截断会掩盖上游分类器的缺陷）
// - 词表之外的情绪名视为不合法输入
func Normalize(subjectID, ownerID string, timestamp time.Time, rawScores map[string]float64) (*models.Detection, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("%w: subject_id is required", ErrInvalidDetection)
	}
	if len(rawScores) == 0 {
		return nil, fmt.Errorf("%w: empty score map", ErrInvalidDetection)
	}

	scores := make(map[string]float64, len(Vocabulary))
	for name, value := range rawScores {
		if !IsValid(name) {
			return nil, fmt.Errorf("%w: unknown emotion %q", ErrInvalidDetection, name)
		}
		if value < 0 || value > 100 {
			return nil, fmt.Errorf("%w: score for %s out of range: %v", ErrInvalidDetection, name, value)
		}
		scores[name] = value
	}

	// 缺失的词表情绪补 0
	for _, name := range Vocabulary {
		if _, ok := scores[name]; !ok {
			scores[name] = 0
		}
	}

	dominant, percent := ResolveDominant(scores)

	return &models.Detection{
		SubjectID:       subjectID,
		OwnerID:         ownerID,
		Timestamp:       timestamp,
		Scores:          scores,
		DominantEmotion: dominant,
		DominantPercent: percent,
	}, nil
}

// ValidateScores 校验一个已规范化的得分表（规则引擎入口防线）
// 词表情绪必须齐全且全部在 [0,100] 内
func ValidateScores(scores map[string]float64) error {
	for _, name := range Vocabulary {
		value, ok := scores[name]
		if !ok {
			return fmt.Errorf("%w: missing emotion %q", ErrInvalidDetection, name)
		}
		if value < 0 || value > 100 {
			return fmt.Errorf("%w: score for %s out of range: %v", ErrInvalidDetection, name, value)
		}
	}
	return nil
}
