package registry

import (
	"time"

	"github.com/stashd/stashd/pkg/metadata"
)

// AccessReason explains an access decision. Reasons are for logs and tests;
// the API layer collapses every denial into not-found so that probing cannot
// distinguish "exists but forbidden" from "does not exist".
type AccessReason string

const (
	// ReasonOwner: the requester owns the file.
	ReasonOwner AccessReason = "owner"

	// ReasonPublic: the file is public and readable by any requester.
	ReasonPublic AccessReason = "public"

	// ReasonExpired: the file's retention has lapsed. Expiry denies everyone,
	// the owner included: the backend may already have reclaimed the object,
	// so pretending it is readable would hand out dead links.
	ReasonExpired AccessReason = "expired"

	// ReasonNotValidated: the object's presence was never confirmed, so there
	// is nothing trustworthy to serve.
	ReasonNotValidated AccessReason = "not_validated"

	// ReasonPrivate: the file is private and the requester is not the owner.
	ReasonPrivate AccessReason = "private"
)

// Decision is the outcome of resolving read access.
type Decision struct {
	Allowed bool
	Reason  AccessReason
}

// ResolveAccess computes read access for requesterID on file at time now.
//
// Pure function of its inputs: no stored state, no clock reads, no backend
// calls. requesterID may be empty for anonymous requests.
//
// Evaluation order: expiry first, then validation state, then ownership,
// then the public flag. An expired public file is denied; a private file is
// readable by its owner only.
func ResolveAccess(file *metadata.File, requesterID string, now time.Time) Decision {
	if file.Expired(now) {
		return Decision{Allowed: false, Reason: ReasonExpired}
	}
	if file.Status != metadata.StatusValidated {
		return Decision{Allowed: false, Reason: ReasonNotValidated}
	}
	if requesterID != "" && requesterID == file.OwnerID {
		return Decision{Allowed: true, Reason: ReasonOwner}
	}
	if file.Permissions == metadata.PermissionPublic {
		return Decision{Allowed: true, Reason: ReasonPublic}
	}
	return Decision{Allowed: false, Reason: ReasonPrivate}
}
