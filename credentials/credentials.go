// Package credentials defines the stored credential record and the
// storage interface the field interceptor wraps.
package credentials

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// ErrNotFound is returned when a credential does not exist.
var ErrNotFound = errors.New("credential not found")

// Credential is a stored OAuth credential for a user/provider pair.
// The token fields are the sensitive ones; at rest they hold encrypted
// blobs when an Interceptor fronts the store.
type Credential struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Provider string `json:"provider"`

	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`

	TokenType string    `json:"token_type,omitempty"`
	Scope     string    `json:"scope,omitempty"`
	Expiry    time.Time `json:"expiry,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the credential.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Token converts the credential to an oauth2.Token. The ID token and
// scope travel in the token's Extra fields, matching what provider
// token endpoints return.
func (c *Credential) Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}

	extra := make(map[string]any)
	if c.IDToken != "" {
		extra["id_token"] = c.IDToken
	}
	if c.Scope != "" {
		extra["scope"] = c.Scope
	}
	if len(extra) > 0 {
		token = token.WithExtra(extra)
	}

	return token
}

// SetToken updates the credential's token fields from an oauth2.Token.
func (c *Credential) SetToken(token *oauth2.Token) {
	c.AccessToken = token.AccessToken
	c.RefreshToken = token.RefreshToken
	c.TokenType = token.TokenType
	c.Expiry = token.Expiry

	if idToken, ok := token.Extra("id_token").(string); ok {
		c.IDToken = idToken
	}
	if scope, ok := token.Extra("scope").(string); ok {
		c.Scope = scope
	}
}

// Store persists credentials. Implementations are plain persistence;
// encryption at rest comes from wrapping a Store in an Interceptor.
type Store interface {
	// Create stores a new credential and returns the stored record.
	Create(ctx context.Context, cred *Credential) (*Credential, error)

	// CreateBatch stores multiple credentials and returns the stored records.
	CreateBatch(ctx context.Context, creds []*Credential) ([]*Credential, error)

	// Get retrieves a credential by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*Credential, error)

	// ListByUser retrieves all credentials belonging to a user.
	ListByUser(ctx context.Context, userID string) ([]*Credential, error)

	// Update replaces an existing credential and returns the stored record.
	// Returns ErrNotFound if the credential does not exist.
	Update(ctx context.Context, cred *Credential) (*Credential, error)

	// UpdateBatch replaces multiple existing credentials.
	UpdateBatch(ctx context.Context, creds []*Credential) ([]*Credential, error)

	// Delete removes a credential by ID. Returns ErrNotFound if absent.
	Delete(ctx context.Context, id string) error

	// Close releases resources held by the store.
	Close() error
}
