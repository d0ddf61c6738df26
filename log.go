package authkit

import "log"

// logBestEffort records failures of operations whose outcome must not alter
// the result already committed (throttle resets, notifier sends, cleanup).
func logBestEffort(op string, err error) {
	log.Printf("authkit: %s failed: %v", op, err)
}
