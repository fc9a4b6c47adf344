package objectstore

import "testing"

func TestMakeKeyParseKeyRoundTrip(t *testing.T) {
	cases := []KeyParts{
		{Environment: "prod", Retention: "infinite", OwnerID: "alice", FileID: "0f8fad5b-d9cb-469f-a165-70867728950e"},
		{Environment: "staging", Retention: "7d", OwnerID: "svc-backup", FileID: "x"},
		{Environment: "dev", Retention: "180d", OwnerID: "a.b-c_d", FileID: "file"},
	}

	for _, parts := range cases {
		key := MakeKey(parts)
		got := ParseKey(key)
		if got == nil {
			t.Fatalf("ParseKey(%q) returned nil", key)
		}
		if *got != parts {
			t.Errorf("round trip mismatch: got %+v, want %+v", *got, parts)
		}
	}
}

func TestMakeKeyLayout(t *testing.T) {
	key := MakeKey(KeyParts{Environment: "prod", Retention: "30d", OwnerID: "alice", FileID: "f1"})
	if key != "prod/30d/alice/f1" {
		t.Errorf("unexpected key layout: %q", key)
	}
}

func TestParseKeyRejectsMalformedKeys(t *testing.T) {
	malformed := []string{
		"",
		"prod",
		"prod/30d",
		"prod/30d/alice",
		"prod/30d/alice/f1/extra",
		"prod//alice/f1",
		"/30d/alice/f1",
		"prod/30d/alice/",
	}

	for _, key := range malformed {
		if got := ParseKey(key); got != nil {
			t.Errorf("ParseKey(%q) = %+v, want nil", key, got)
		}
	}
}
