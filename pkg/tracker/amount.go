package tracker

import (
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// Amount is a monetary figure. Arithmetic is decimal; JSON carries a plain number.
type Amount struct {
	decimal.Decimal
}

// MarshalJSON outputs a JSON number rounded to four places.
func (a Amount) MarshalJSON() ([]byte, error) {
	f, _ := a.Round(4).Float64()
	return []byte(strconv.FormatFloat(f, 'f', -1, 64)), nil
}

// UnmarshalJSON accepts both JSON numbers and quoted strings.
func (a *Amount) UnmarshalJSON(data []byte) error {
	return a.Decimal.UnmarshalJSON(data)
}

// EncodeMsgpack stores the exact decimal text.
func (a Amount) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(a.String())
}

// DecodeMsgpack reads the decimal text written by EncodeMsgpack.
func (a *Amount) DecodeMsgpack(dec *msgpack.Decoder) error {
	s, err := dec.DecodeString()
	if err != nil {
		return err
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	a.Decimal = d
	return nil
}

// Float returns the amount as float64.
func (a Amount) Float() float64 {
	return a.InexactFloat64()
}

// NewAmount creates an Amount from a float64.
func NewAmount(f float64) Amount {
	return Amount{decimal.NewFromFloat(f)}
}

func amountOf(d decimal.Decimal) Amount {
	return Amount{d}
}

func amountPtr(d decimal.Decimal) *Amount {
	a := Amount{d}
	return &a
}

func decimalOf(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
