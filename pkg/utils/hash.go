package utils

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// HashQuery returns a stable md5 hex digest of a SQL statement and its
// bound arguments, suitable as a cache key suffix.
func HashQuery(statement string, args []any) string {
	var b strings.Builder
	b.WriteString(statement)
	for _, arg := range args {
		b.WriteByte(0x1f)
		fmt.Fprintf(&b, "%T:%v", arg, arg)
	}
	return HashString(b.String())
}

func HashString(input string) string {
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}
