package credentials

import (
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestCredentialTokenRoundTrip(t *testing.T) {
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	cred := &Credential{
		ID:           "cred-1",
		UserID:       "user-1",
		Provider:     "google",
		AccessToken:  "ya29.access",
		RefreshToken: "1//refresh",
		IDToken:      "eyJ.header.payload",
		TokenType:    "Bearer",
		Scope:        "openid email",
		Expiry:       expiry,
	}

	token := cred.Token()

	if token.AccessToken != cred.AccessToken {
		t.Errorf("AccessToken = %q, want %q", token.AccessToken, cred.AccessToken)
	}
	if token.RefreshToken != cred.RefreshToken {
		t.Errorf("RefreshToken = %q, want %q", token.RefreshToken, cred.RefreshToken)
	}
	if got, _ := token.Extra("id_token").(string); got != cred.IDToken {
		t.Errorf("Extra(id_token) = %q, want %q", got, cred.IDToken)
	}
	if got, _ := token.Extra("scope").(string); got != cred.Scope {
		t.Errorf("Extra(scope) = %q, want %q", got, cred.Scope)
	}

	var back Credential
	back.SetToken(token)

	if back.AccessToken != cred.AccessToken {
		t.Errorf("SetToken AccessToken = %q, want %q", back.AccessToken, cred.AccessToken)
	}
	if back.IDToken != cred.IDToken {
		t.Errorf("SetToken IDToken = %q, want %q", back.IDToken, cred.IDToken)
	}
	if back.Scope != cred.Scope {
		t.Errorf("SetToken Scope = %q, want %q", back.Scope, cred.Scope)
	}
	if !back.Expiry.Equal(expiry) {
		t.Errorf("SetToken Expiry = %v, want %v", back.Expiry, expiry)
	}
}

func TestCredentialTokenWithoutExtras(t *testing.T) {
	cred := &Credential{AccessToken: "at", TokenType: "Bearer"}
	token := cred.Token()

	if token.Extra("id_token") != nil {
		t.Error("Extra(id_token) should be nil when IDToken is empty")
	}
}

func TestSetTokenIgnoresMissingExtras(t *testing.T) {
	cred := &Credential{IDToken: "existing", Scope: "existing"}
	cred.SetToken(&oauth2.Token{AccessToken: "new"})

	if cred.AccessToken != "new" {
		t.Errorf("AccessToken = %q, want %q", cred.AccessToken, "new")
	}
	if cred.IDToken != "existing" {
		t.Errorf("IDToken = %q, want %q (absent extras must not clobber)", cred.IDToken, "existing")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := &Credential{ID: "a", AccessToken: "secret"}
	cp := orig.Clone()
	cp.AccessToken = "changed"

	if orig.AccessToken != "secret" {
		t.Error("mutating a clone must not affect the original")
	}
}

func TestCloneNil(t *testing.T) {
	var cred *Credential
	if cred.Clone() != nil {
		t.Error("Clone() of nil should be nil")
	}
}
