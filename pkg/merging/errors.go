package merging

import "errors"

// errContention signals that a concurrent merge moved one of our roots
// while we waited on the pair lock; the operation retries against the new
// roots.
var errContention = errors.New("merge root contention")

func isContention(err error) bool {
	return errors.Is(err, errContention)
}
