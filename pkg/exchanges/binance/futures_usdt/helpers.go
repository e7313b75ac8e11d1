package futures_usdt

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/seokjunHwang/Quant/pkg/exchanges/common"
)

const defaultTakerFee = 0.0004

func sumCommission(trades []UserTrade) float64 {
	total := decimal.Zero
	for _, t := range trades {
		if v, err := decimal.NewFromString(t.Commission); err == nil {
			total = total.Add(v)
		}
	}
	return total.InexactFloat64()
}

func estimateCommission(qty, price, rate float64) float64 {
	return decimal.NewFromFloat(qty).
		Mul(decimal.NewFromFloat(price)).
		Mul(decimal.NewFromFloat(rate)).
		InexactFloat64()
}

func sign(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func mapStatus(s string) common.OrderStatus {
	switch s {
	case "NEW":
		return common.StatusNew
	case "PARTIALLY_FILLED":
		return common.StatusPartial
	case "FILLED":
		return common.StatusFilled
	case "CANCELED":
		return common.StatusCanceled
	case "REJECTED":
		return common.StatusRejected
	case "EXPIRED", "EXPIRED_IN_MATCH":
		return common.StatusExpired
	default:
		return common.StatusUnknown
	}
}

func toBinanceTIF(tif common.TimeInForce) common.TimeInForce {
	if tif == "" {
		return common.TIFGTC
	}
	return tif
}

// precisionFromStep returns the decimal places of a step such as 0.001.
func precisionFromStep(step float64) int {
	if step <= 0 || step >= 1 {
		return 0
	}
	exp := decimal.NewFromFloat(step).Exponent()
	if exp >= 0 {
		return 0
	}
	return int(-exp)
}

// rulesFromInfo extracts trading filters, falling back to the published precisions.
func rulesFromInfo(sym SymbolInfo) common.SymbolRules {
	r := common.SymbolRules{
		Symbol:            sym.Symbol,
		PricePrecision:    sym.PricePrecision,
		QuantityPrecision: sym.QuantityPrecision,
	}
	for _, f := range sym.Filters {
		switch f.FilterType {
		case "PRICE_FILTER":
			if tick := parseFloat(f.TickSize); tick > 0 {
				r.TickSize = tick
				r.PricePrecision = precisionFromStep(tick)
			}
		case "LOT_SIZE":
			if step := parseFloat(f.StepSize); step > 0 {
				r.StepSize = step
				r.QuantityPrecision = precisionFromStep(step)
			}
			r.MinQty = parseFloat(f.MinQty)
		case "MIN_NOTIONAL":
			r.MinNotional = parseFloat(f.Notional)
		}
	}
	return r
}
