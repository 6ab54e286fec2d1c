package model

import (
	"fmt"

	"github.com/google/uuid"
)

// claimNamespace roots every derived Claim id so re-running the same
// projection against the same theory always yields the same id set.
var claimNamespace = uuid.MustParse("8f14e45f-ceea-467e-bd6f-abcdef012345")

// ClaimID derives a stable, idempotent id for one paradigm item. Calling
// this twice with identical inputs always returns the same UUID, which is
// what lets claim projection re-sync without duplicating graph nodes.
func ClaimID(theoryID, section string, order int, text string) string {
	name := fmt.Sprintf("%s|%s|%d|%s", theoryID, section, order, text)
	return uuid.NewSHA1(claimNamespace, []byte(name)).String()
}
