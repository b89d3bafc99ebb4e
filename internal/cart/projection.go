package cart

import "github.com/shopspring/decimal"

// Total は price_at_addition × quantity の合計（割引なし・基軸通貨）。
// 都度計算で、どこにも保存しない。
func (e *Engine) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.snapshot {
		total = total.Add(l.PriceAtAddition.Mul(decimal.NewFromInt(l.Quantity)))
	}
	return total
}

// ItemCount は数量の合計。明細数ではない（数量5の明細は5と数える）。
func (e *Engine) ItemCount() int64 {
	var count int64
	for _, l := range e.snapshot {
		count += l.Quantity
	}
	return count
}
