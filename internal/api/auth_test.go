package api

import (
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestBearer(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer  abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"Bearer   ", "", false},
	}
	for _, tt := range tests {
		tok, ok := bearer(tt.header)
		if ok != tt.ok || tok != tt.token {
			t.Fatalf("bearer(%q) = %q,%v expected %q,%v", tt.header, tok, ok, tt.token, tt.ok)
		}
	}
}

func TestOperatorSessions(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	o := newOperatorAuth(Auth{JWTSecret: "s1", AdminPasswordHash: string(hash)})

	if !o.verifyPassword(operatorName, "pw") || o.verifyPassword(operatorName, "nope") || o.verifyPassword("root", "pw") {
		t.Fatalf("password check misbehaves")
	}

	tok, _, err := o.issue(operatorName)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if user, err := o.verify(tok); err != nil || user != operatorName {
		t.Fatalf("verify = %q, %v", user, err)
	}

	other := newOperatorAuth(Auth{JWTSecret: "s2"})
	if _, err := other.verify(tok); err == nil {
		t.Fatalf("token accepted under a different secret")
	}

	o.now = func() time.Time { return time.Now().Add(-2 * sessionTTL) }
	stale, _, err := o.issue(operatorName)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := o.verify(stale); err == nil {
		t.Fatalf("expired token accepted")
	}
}
