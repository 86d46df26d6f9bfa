package port

import (
	"context"

	"lingap/internal/service/encounter/domain"
)

// NutritionCalculator 是营养分类计算器协作方。
// 纯计算、无副作用，所以可以在提交前调用来驱动条件校验。
type NutritionCalculator interface {
	Classify(ctx context.Context, weightKg, heightCm float64, ageMonths int) (*domain.NutritionResult, error)
}
