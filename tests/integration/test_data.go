package integration

import (
	"fmt"
	"time"
)

// TestAccount generates unique test credentials using a timestamp so
// parallel runs never collide on the email uniqueness constraint
func TestAccount(suffix string) (email, password string) {
	email = fmt.Sprintf("test-%d-%s@example.com", time.Now().UnixNano(), suffix)
	password = "TestPassword123"
	return
}
