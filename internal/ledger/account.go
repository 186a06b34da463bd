package ledger

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
)

// NullAccount is the zero identity. Transfers to it are rejected and a fee
// recipient set to it disables minting.
var NullAccount = uuid.Nil

// IsNull reports whether id is the null account.
func IsNull(id uuid.UUID) bool {
	return id == NullAccount
}

// SortAccounts orders ids by their byte representation. Map iteration is
// random, so every walk that feeds the state hash goes through this.
func SortAccounts(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}
