package utils

import (
	"testing"
	"time"
)

func TestUserCursorRoundTrip(t *testing.T) {
	createdAt := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	encoded, err := EncodeUserCursor(createdAt, "user-1")

	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	c, err := DecodeUserCursor(encoded)

	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if !c.CreatedAt.Equal(createdAt) || c.ID != "user-1" {
		t.Fatalf("round trip mismatch: %+v", c)
	}
}

func TestDecodeUserCursorRejectsBadInput(t *testing.T) {
	cases := []struct {
		name   string
		cursor string
	}{
		{"empty", ""},
		{"not base64", "@@@"},
		{"not json", "bm90LWpzb24"},
		{"missing fields", "e30"}, // {}
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeUserCursor(tc.cursor); err == nil {
				t.Fatalf("expected an error for %q", tc.cursor)
			}
		})
	}
}
