package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Decimal is an exact number in a policy document. JSON carries it as a number
// (a quoted string is also accepted); Mongo stores the decimal string.
type Decimal struct {
	decimal.Decimal
}

// DecimalFromInt wraps an integer
func DecimalFromInt(v int64) Decimal {
	return Decimal{decimal.NewFromInt(v)}
}

// MustDecimal parses value and panics if it is not a number
func MustDecimal(value string) Decimal {
	return Decimal{decimal.RequireFromString(value)}
}

func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(d.Decimal.String()), nil
}

func (d *Decimal) UnmarshalJSON(data []byte) error {
	return d.Decimal.UnmarshalJSON(data)
}

func (d Decimal) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(d.Decimal.String())
}

func (d *Decimal) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.Null, bsontype.Undefined:
		d.Decimal = decimal.Zero
		return nil
	case bsontype.Int32:
		d.Decimal = decimal.NewFromInt32(raw.Int32())
		return nil
	case bsontype.Int64:
		d.Decimal = decimal.NewFromInt(raw.Int64())
		return nil
	case bsontype.String:
		parsed, err := decimal.NewFromString(raw.StringValue())
		if err != nil {
			return fmt.Errorf("invalid decimal %q: %w", raw.StringValue(), err)
		}
		d.Decimal = parsed
		return nil
	}
	return fmt.Errorf("cannot decode BSON %s into a decimal", t)
}
