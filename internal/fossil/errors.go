package fossil

import (
	"errors"
	"fmt"
)

// ErrUncollectible is returned by DeleteFossils when at least one registered
// client has not produced an archive strictly after the collection's
// timestamp. It is recoverable: wait for clients to become quiescent (or
// silent) and retry.
var ErrUncollectible = errors.New("fossil: repository is not yet quiescent with respect to this collection")

// CollectionError wraps a failure encountered while enumerating archives,
// iterating an archive's chunks, or fossilising a candidate during
// CollectFossils. It is always recoverable by retrying: any chunks already
// fossilised before the failure remain fossils and are safely reabsorbed by
// a subsequent pass.
type CollectionError struct {
	Op  string
	Err error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("fossil: collect: %s: %v", e.Op, e.Err)
}

func (e *CollectionError) Unwrap() error {
	return e.Err
}

// DeletionError wraps a failure encountered while enumerating archives or
// clients, or while recovering/deleting a fossil, during DeleteFossils. Use
// errors.Is(err, ErrUncollectible) to detect the quiescence gate rather than
// inspecting this type directly.
type DeletionError struct {
	Op  string
	Err error
}

func (e *DeletionError) Error() string {
	return fmt.Sprintf("fossil: delete: %s: %v", e.Op, e.Err)
}

func (e *DeletionError) Unwrap() error {
	return e.Err
}
