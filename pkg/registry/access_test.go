package registry

import (
	"testing"
	"time"

	"github.com/stashd/stashd/pkg/metadata"
)

func TestResolveAccess(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	makeFile := func(perm metadata.Permission, status metadata.FileStatus, expiresAt *time.Time) *metadata.File {
		return &metadata.File{
			OwnerID:     "alice",
			Permissions: perm,
			Status:      status,
			ExpiresAt:   expiresAt,
		}
	}

	tests := []struct {
		name        string
		file        *metadata.File
		requester   string
		wantAllowed bool
		wantReason  AccessReason
	}{
		{
			name:        "owner reads private file",
			file:        makeFile(metadata.PermissionPrivate, metadata.StatusValidated, nil),
			requester:   "alice",
			wantAllowed: true,
			wantReason:  ReasonOwner,
		},
		{
			name:        "stranger denied private file",
			file:        makeFile(metadata.PermissionPrivate, metadata.StatusValidated, nil),
			requester:   "bob",
			wantAllowed: false,
			wantReason:  ReasonPrivate,
		},
		{
			name:        "anonymous reads public file",
			file:        makeFile(metadata.PermissionPublic, metadata.StatusValidated, nil),
			requester:   "",
			wantAllowed: true,
			wantReason:  ReasonPublic,
		},
		{
			name:        "anonymous denied private file",
			file:        makeFile(metadata.PermissionPrivate, metadata.StatusValidated, nil),
			requester:   "",
			wantAllowed: false,
			wantReason:  ReasonPrivate,
		},
		{
			name:        "expiry denies even the owner",
			file:        makeFile(metadata.PermissionPrivate, metadata.StatusValidated, &past),
			requester:   "alice",
			wantAllowed: false,
			wantReason:  ReasonExpired,
		},
		{
			name:        "expiry denies public files",
			file:        makeFile(metadata.PermissionPublic, metadata.StatusValidated, &past),
			requester:   "bob",
			wantAllowed: false,
			wantReason:  ReasonExpired,
		},
		{
			name:        "future expiry still readable",
			file:        makeFile(metadata.PermissionPublic, metadata.StatusValidated, &future),
			requester:   "bob",
			wantAllowed: true,
			wantReason:  ReasonPublic,
		},
		{
			name:        "reserved file not readable by owner",
			file:        makeFile(metadata.PermissionPrivate, metadata.StatusReserved, nil),
			requester:   "alice",
			wantAllowed: false,
			wantReason:  ReasonNotValidated,
		},
		{
			name:        "failed file not readable",
			file:        makeFile(metadata.PermissionPublic, metadata.StatusFailed, nil),
			requester:   "bob",
			wantAllowed: false,
			wantReason:  ReasonNotValidated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveAccess(tt.file, tt.requester, now)
			if got.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v", got.Allowed, tt.wantAllowed)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.wantReason)
			}
		})
	}
}
