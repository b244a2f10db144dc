package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// UpdateKey names the idempotency slot of one Telegram update. Scope and
// chat stay readable; ref (update id, callback id or message id) is hashed
// so callback ids of any length fit.
func UpdateKey(scope string, chatID int64, ref any) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%v", scope, chatID, ref)))
	return fmt.Sprintf("%s:%d:%s", scope, chatID, hex.EncodeToString(sum[:8]))
}
