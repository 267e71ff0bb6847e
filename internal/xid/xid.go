package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns an identifier of the form "<prefix>-<uuid v7>". v7 ids sort by
// creation time, which keeps ledger tables roughly append-ordered.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return id.String()
	}
	return prefix + "-" + id.String()
}

// HasPrefix reports whether id was minted by New with the given prefix.
func HasPrefix(id string, prefix string) bool {
	rest, ok := strings.CutPrefix(id, prefix+"-")
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}
