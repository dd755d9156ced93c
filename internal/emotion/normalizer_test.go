package emotion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullScores(overrides map[string]float64) map[string]float64 {
	scores := map[string]float64{
		Happy: 5, Sad: 5, Angry: 5, Fear: 5, Disgust: 5, Surprise: 5, Neutral: 5,
	}
	for k, v := range overrides {
		scores[k] = v
	}
	return scores
}

func TestNormalize_UniqueMaximum(t *testing.T) {
	det, err := Normalize("subject-1", "owner-1", time.Now(), fullScores(map[string]float64{
		Happy: 82.5,
	}))

	require.NoError(t, err)
	assert.Equal(t, Happy, det.DominantEmotion)
	assert.Equal(t, 82.5, det.DominantPercent)
	assert.Equal(t, "subject-1", det.SubjectID)
	assert.Equal(t, "owner-1", det.OwnerID)
	assert.Len(t, det.Scores, 7)
}

func TestNormalize_TieBreakPrecedence(t *testing.T) {
	// 并列最大值时按 sad > angry > fear > disgust > surprise > happy > neutral
	tests := []struct {
		name     string
		tied     []string
		expected string
	}{
		{"sad beats happy", []string{Happy, Sad}, Sad},
		{"angry beats surprise", []string{Surprise, Angry}, Angry},
		{"fear beats neutral", []string{Neutral, Fear}, Fear},
		{"sad beats everything", []string{Happy, Sad, Angry, Fear, Disgust, Surprise, Neutral}, Sad},
		{"happy beats neutral", []string{Neutral, Happy}, Happy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			overrides := make(map[string]float64)
			for _, e := range tt.tied {
				overrides[e] = 90
			}
			det, err := Normalize("subject-1", "owner-1", time.Now(), fullScores(overrides))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, det.DominantEmotion)
			assert.Equal(t, 90.0, det.DominantPercent)
		})
	}
}

func TestNormalize_MissingEmotionsDefaultToZero(t *testing.T) {
	det, err := Normalize("subject-1", "owner-1", time.Now(), map[string]float64{
		Happy: 60,
	})

	require.NoError(t, err)
	assert.Equal(t, Happy, det.DominantEmotion)
	assert.Equal(t, 0.0, det.Scores[Sad])
	assert.Equal(t, 0.0, det.Scores[Neutral])
	assert.Len(t, det.Scores, 7)
}

func TestNormalize_EmptyScoresFails(t *testing.T) {
	// 完全没有得分视为分类器故障
	_, err := Normalize("subject-1", "owner-1", time.Now(), map[string]float64{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDetection)
}

func TestNormalize_OutOfRangeFails(t *testing.T) {
	_, err := Normalize("subject-1", "owner-1", time.Now(), map[string]float64{
		Happy: 101,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDetection)

	_, err = Normalize("subject-1", "owner-1", time.Now(), map[string]float64{
		Happy: -0.5,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDetection)
}

func TestNormalize_UnknownEmotionFails(t *testing.T) {
	_, err := Normalize("subject-1", "owner-1", time.Now(), map[string]float64{
		"confused": 50,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDetection)
}

func TestNormalize_MissingSubjectFails(t *testing.T) {
	_, err := Normalize("", "owner-1", time.Now(), fullScores(nil))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDetection)
}

func TestValidateScores(t *testing.T) {
	assert.NoError(t, ValidateScores(fullScores(nil)))

	// 缺少词表情绪
	incomplete := fullScores(nil)
	delete(incomplete, Angry)
	err := ValidateScores(incomplete)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDetection)

	// 超出范围
	bad := fullScores(map[string]float64{Fear: 120})
	err = ValidateScores(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDetection)
}

func TestPredominantCount(t *testing.T) {
	assert.Equal(t, "", PredominantCount(map[string]int{}))
	assert.Equal(t, Happy, PredominantCount(map[string]int{Happy: 3, Sad: 1}))
	// 计数并列时负面情绪优先
	assert.Equal(t, Sad, PredominantCount(map[string]int{Happy: 3, Sad: 3}))
}
