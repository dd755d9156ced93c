package emotion

// 固定情绪词表（与分类器输出一致）
const (
	Happy    = "happy"
	Sad      = "sad"
	Angry    = "angry"
	Fear     = "fear"
	Disgust  = "disgust"
	Surprise = "surprise"
	Neutral  = "neutral"
)

// Vocabulary 词表全集
var Vocabulary = []string{Happy, Sad, Angry, Fear, Disgust, Surprise, Neutral}

// dominancePrecedence 主导情绪并列时的固定优先级（负面/紧急情绪优先于中性/正面情绪）
// 下标越小优先级越高
var dominancePrecedence = []string{Sad, Angry, Fear, Disgust, Surprise, Happy, Neutral}

// precedenceIndex 情绪 → 优先级下标
var precedenceIndex = func() map[string]int {
	m := make(map[string]int, len(dominancePrecedence))
	for i, e := range dominancePrecedence {
		m[e] = i
	}
	return m
}()

// IsValid 判断是否为词表中的情绪
func IsValid(emotion string) bool {
	_, ok := precedenceIndex[emotion]
	return ok
}

// ResolveDominant 从完整的得分表中选出主导情绪
// 多个情绪并列最大值时按 dominancePrecedence 决定，保证同样输入得到同样输出
func ResolveDominant(scores map[string]float64) (string, float64) {
	dominant := ""
	dominantScore := 0.0
	for _, e := range dominancePrecedence {
		score := scores[e]
		if dominant == "" || score > dominantScore {
			dominant = e
			dominantScore = score
		}
	}
	return dominant, dominantScore
}

// PredominantCount 从计数表中选出出现次数最多的情绪（并列时按 dominancePrecedence）
// 计数全为零时返回空字符串
func PredominantCount(counts map[string]int) string {
	predominant := ""
	max := 0
	for _, e := range dominancePrecedence {
		if counts[e] > max {
			predominant = e
			max = counts[e]
		}
	}
	return predominant
}
