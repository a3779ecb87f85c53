package vault

import "math/big"

// ToUnitOfAccount converts a raw asset amount into the internal accounting
// unit using the supplied price. The computation is
//
//	amount * price / 10^(assetDecimals + priceDecimals - UnitDecimals)
//
// performed entirely in integer arithmetic with truncation toward zero. When
// the combined precision is below UnitDecimals the result is scaled up
// instead, so the function stays total for every decimal pairing.
func ToUnitOfAccount(amount *big.Int, assetDecimals uint8, price *big.Int, priceDecimals uint8) *big.Int {
	if amount == nil || price == nil {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(amount, price)
	exponent := int(assetDecimals) + int(priceDecimals) - int(UnitDecimals)
	if exponent == 0 {
		return product
	}
	scale := pow10(exponent)
	if exponent > 0 {
		return product.Quo(product, scale)
	}
	return product.Mul(product, scale)
}

func pow10(exponent int) *big.Int {
	if exponent < 0 {
		exponent = -exponent
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exponent)), nil)
}
