package orderbook

import "fmt"

// Enums travel as their names in JSON, in the journal and on the wire alike.

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Side) UnmarshalText(b []byte) (err error) {
	*s, err = ParseSide(string(b))
	return err
}

func (t OrderType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *OrderType) UnmarshalText(b []byte) (err error) {
	*t, err = ParseOrderType(string(b))
	return err
}

func (t TimeInForce) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TimeInForce) UnmarshalText(b []byte) (err error) {
	*t, err = ParseTimeInForce(string(b))
	return err
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	for c := Pending; c <= Expired; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

func (r CancelReason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *CancelReason) UnmarshalText(b []byte) error {
	for c := ReasonNone; c <= ReasonDeadline; c++ {
		if c.String() == string(b) {
			*r = c
			return nil
		}
	}
	return fmt.Errorf("unknown cancel reason %q", b)
}
