package repositories

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrNotFound is wrapped by lookups and updates that matched no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is wrapped when a unique key already holds the value.
	ErrDuplicate = errors.New("already exists")
	// ErrOverpayment is wrapped when a payment exceeds the unpaid amount.
	ErrOverpayment = errors.New("payment exceeds outstanding amount")
)

const (
	mysqlDuplicateEntry  = 1062
	mysqlNoReferencedRow = 1452
)

// translateError maps MySQL constraint violations to the sentinel errors
// above. Other errors are returned unchanged.
func translateError(err error) error {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return err
	}
	switch myErr.Number {
	case mysqlDuplicateEntry:
		return fmt.Errorf("%w: %s", ErrDuplicate, myErr.Message)
	case mysqlNoReferencedRow:
		return fmt.Errorf("referenced row: %w", ErrNotFound)
	default:
		return err
	}
}
