package env

import "fmt"

// InvalidStateError 步进协议误用（如未 reset 先 step）。属编程错误，调用方不应恢复。
type InvalidStateError struct {
	Op    string
	State string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("环境协议误用: %s 不允许在 %s 状态下调用", e.Op, e.State)
}

// InvalidActionError 动作非法（NaN/Inf 或越界且未开启 clamping），仅中止当前 episode。
type InvalidActionError struct {
	Action float64
	Reason string
}

func (e *InvalidActionError) Error() string {
	return fmt.Sprintf("动作非法 (%v): %s", e.Action, e.Reason)
}

// DivergenceError 数值发散：价格/希腊字母/P&L 出现 NaN 或 Inf。
// 中止当前 episode 并计入训练器的失败预算。
type DivergenceError struct {
	Step  int
	Field string
	Value float64
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("数值发散: step %d 的 %s = %v", e.Step, e.Field, e.Value)
}
