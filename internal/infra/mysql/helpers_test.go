package mysql

import gomysql "github.com/go-sql-driver/mysql"

func dupEntryErr() error {
	return &gomysql.MySQLError{Number: 1062, Message: "Duplicate entry 'mei1@example.com' for key 'address'"}
}

// serverGoneErr is used instead of driver.ErrBadConn, which database/sql retries.
func serverGoneErr() error {
	return &gomysql.MySQLError{Number: 2006, Message: "MySQL server has gone away"}
}
