package enums

// Currency is the ISO-4217 code carried on monetary amounts. The platform
// is single-currency today; the enum keeps the column typed.
type Currency string

const (
	CurrencyUSD Currency = "USD"
)

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the value is a supported Currency.
func (c Currency) IsValid() bool {
	return c == CurrencyUSD
}
