package adapter

import (
	"context"

	"lingap/internal/pkg/constants"
	"lingap/internal/pkg/httpclient"
	"lingap/internal/service/encounter/domain"
	"lingap/internal/service/encounter/domain/port"
)

// NutritionHTTPAdapter 调用营养计算器协作方实现 port.NutritionCalculator。
type NutritionHTTPAdapter struct {
	client *httpclient.Client
}

func NewNutritionHTTPAdapter(client *httpclient.Client) *NutritionHTTPAdapter {
	return &NutritionHTTPAdapter{client: client}
}

type nutritionCalcRequest struct {
	WeightKg  float64 `json:"weightKg"`
	HeightCm  float64 `json:"heightCm"`
	AgeMonths int     `json:"ageMonths"`
}

type nutritionCalcResponse struct {
	WeightForAge    string `json:"weightForAge"`
	HeightForAge    string `json:"heightForAge"`
	WeightForHeight string `json:"weightForHeight"`
}

func (a *NutritionHTTPAdapter) Classify(ctx context.Context, weightKg, heightCm float64, ageMonths int) (*domain.NutritionResult, error) {
	req := nutritionCalcRequest{WeightKg: weightKg, HeightCm: heightCm, AgeMonths: ageMonths}
	var resp nutritionCalcResponse
	// 纯计算端点，POST 无副作用
	if err := a.client.PostJSON(ctx, constants.NutritionCalcService, constants.NutritionCalcPath, req, &resp); err != nil {
		return nil, err
	}
	return &domain.NutritionResult{
		WeightForAge:    resp.WeightForAge,
		HeightForAge:    resp.HeightForAge,
		WeightForHeight: resp.WeightForHeight,
	}, nil
}

var _ port.NutritionCalculator = (*NutritionHTTPAdapter)(nil)
