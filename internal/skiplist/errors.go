package skiplist

import (
	"errors"
	"fmt"
)

// ErrKeyTooLarge is returned for keys longer than layout.MaxKeySize.
var ErrKeyTooLarge = errors.New("skiplist: key too large")

// OrderError reports two adjacent level-0 keys out of order.
type OrderError struct {
	Prev, Next []byte
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("skiplist: key %x does not sort after %x", e.Next, e.Prev)
}
