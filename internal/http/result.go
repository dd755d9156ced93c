package httpapi

// Result 与仪表盘前端的 Axios 拦截器约定保持一致
// - code: 2000 成功
// - type: 'success' | 'error'
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
)

func Ok[T any](data T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Data: data}
}

func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Message: message, Data: nil}
}
