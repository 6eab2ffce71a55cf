package mysql

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/boddenberg/central-sheets-import/internal/domain"

	gomysql "github.com/go-sql-driver/mysql"
)

// MySQL server error numbers the importer reacts to.
const (
	errDupEntry        = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errServerGone      = 2006
	errServerLost      = 2013
)

const serviceName = "mysql"

// classify maps driver errors onto domain errors: unique violations become
// *domain.ErrDuplicate, lost connections and aborted transactions become
// *domain.ErrExternalService. Everything else is wrapped with op.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var me *gomysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case errDupEntry:
			return &domain.ErrDuplicate{Key: me.Message}
		case errLockWaitTimeout, errDeadlock, errServerGone, errServerLost:
			return &domain.ErrExternalService{Service: serviceName, Err: fmt.Errorf("%s: %w", op, err)}
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, gomysql.ErrInvalidConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, sql.ErrTxDone) ||
		errors.As(err, &netErr) {
		return &domain.ErrExternalService{Service: serviceName, Err: fmt.Errorf("%s: %w", op, err)}
	}
	return fmt.Errorf("%s: %w", op, err)
}
