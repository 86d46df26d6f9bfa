package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lingap/internal/pkg/constants"
	"lingap/internal/pkg/httpclient"
	"lingap/internal/service/inventory/domain"
)

// StockStoreHTTPAdapter 用临床核心的库存端点实现 port.StockStore。
type StockStoreHTTPAdapter struct {
	client *httpclient.Client
}

// NewStockStoreHTTPAdapter 创建库存协作方适配器。
func NewStockStoreHTTPAdapter(client *httpclient.Client) *StockStoreHTTPAdapter {
	return &StockStoreHTTPAdapter{client: client}
}

type inventoryItemResponse struct {
	AvailableQuantity int    `json:"availableQuantity"`
	Unit              string `json:"unit"`
}

type stockTransactionResponse struct {
	ID       int64  `json:"id"`
	MinvID   int64  `json:"minvId"`
	Delta    int    `json:"delta"`
	Action   string `json:"action"`
	Actor    string `json:"actor"`
	Reason   string `json:"reason"`
	Reversed bool   `json:"reversed"`
}

func (a *StockStoreHTTPAdapter) GetItem(ctx context.Context, itemID int64) (*domain.StockItem, error) {
	var resp inventoryItemResponse
	path := fmt.Sprintf("%s/%d", constants.InventoryItemPath, itemID)
	if err := a.client.GetJSON(ctx, constants.ClinicalCoreService, path, &resp); err != nil {
		if errors.Is(err, httpclient.ErrNotFound) {
			return nil, domain.ErrItemNotFound
		}
		return nil, err
	}
	return &domain.StockItem{ID: itemID, AvailableQuantity: resp.AvailableQuantity, Unit: resp.Unit}, nil
}

func (a *StockStoreHTTPAdapter) UpdateQuantity(ctx context.Context, itemID int64, quantity int) error {
	path := fmt.Sprintf("%s/%d", constants.InventoryItemPath, itemID)
	body := map[string]interface{}{
		"availableQuantity": quantity,
		// 下游缓存失效依赖这个时间戳
		"lastModifiedAt": time.Now().UTC().Format(time.RFC3339),
	}
	if err := a.client.Patch(ctx, constants.ClinicalCoreService, path, body); err != nil {
		if errors.Is(err, httpclient.ErrNotFound) {
			return domain.ErrItemNotFound
		}
		return err
	}
	return nil
}

func (a *StockStoreHTTPAdapter) AppendTransaction(ctx context.Context, tx *domain.StockTransaction) (int64, error) {
	body := map[string]interface{}{
		"minvId": tx.StockItemID,
		"delta":  tx.Delta,
		"action": string(tx.Action),
		"actor":  tx.Actor,
		"reason": tx.Reason,
	}
	return a.client.PostCreate(ctx, constants.ClinicalCoreService, constants.StockTransactionPath, body)
}

func (a *StockStoreHTTPAdapter) GetTransaction(ctx context.Context, txID int64) (*domain.StockTransaction, error) {
	var resp stockTransactionResponse
	path := fmt.Sprintf("%s/%d", constants.StockTransactionPath, txID)
	if err := a.client.GetJSON(ctx, constants.ClinicalCoreService, path, &resp); err != nil {
		if errors.Is(err, httpclient.ErrNotFound) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	return &domain.StockTransaction{
		ID:          resp.ID,
		StockItemID: resp.MinvID,
		Delta:       resp.Delta,
		Action:      domain.TransactionAction(resp.Action),
		Actor:       resp.Actor,
		Reason:      resp.Reason,
		Reversed:    resp.Reversed,
	}, nil
}

func (a *StockStoreHTTPAdapter) MarkReversed(ctx context.Context, txID int64) error {
	path := fmt.Sprintf("%s/%d", constants.StockTransactionPath, txID)
	if err := a.client.Patch(ctx, constants.ClinicalCoreService, path, map[string]interface{}{"reversed": true}); err != nil {
		if errors.Is(err, httpclient.ErrNotFound) {
			return domain.ErrTransactionNotFound
		}
		return err
	}
	return nil
}
