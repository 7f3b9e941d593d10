package core

import (
	"context"
)

// Locker serializes callers on a string key. It is an opt-in aid for
// check-then-insert flows like fetch-or-create; the row cache itself never
// takes locks on behalf of callers.
type Locker interface {
	// Lock blocks until the key is held or ctx is done. The returned
	// function releases the key and must be called exactly once.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Bindable is a table-like handle that executes through a connection once
// bound: plain tables, row tables and declared models.
type Bindable interface {
	// TableName returns the unqualified table name.
	TableName() string

	// Bind points the handle at a connection.
	Bind(conn Conn)
}
