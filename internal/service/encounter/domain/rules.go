package domain

// Fact 是交给规则引擎评估的上下文。
type Fact struct {
	WeightForAge    string  `json:"weightForAge"`
	HeightForAge    string  `json:"heightForAge"`
	WeightForHeight string  `json:"weightForHeight"`
	EdemaSeverity   string  `json:"edemaSeverity"`
	MUACCm          float64 `json:"muacCm"`
}

// RuleEngine 评估可配置的临床校验规则。
// 典型规则: 重度急性营养不良分类下水肿程度必填。
type RuleEngine interface {
	Evaluate(rule string, fact Fact) (bool, error)
}
