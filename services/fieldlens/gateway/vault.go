// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gateway

import (
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
)

// ErrSecretMissing is returned when a credential was never sealed.
var ErrSecretMissing = errors.New("gateway: credential not configured")

// CredentialSource supplies the upstream credentials on demand.
//
// Thread Safety: Implementations must be safe for concurrent use.
type CredentialSource interface {
	// ClientID returns the OAuth client id. Not secret.
	ClientID() string

	// ClientSecret returns the OAuth client secret.
	ClientSecret() (string, error)

	// AppKey returns the value of the ST-App-Key header.
	AppKey() (string, error)
}

// Vault keeps the client secret and application key in memguard enclaves.
//
// Description:
//
//	Secrets are encrypted at rest in process memory and decrypted into a
//	locked buffer only for the duration of a read. The plain strings handed
//	to callers are short-lived (one token exchange or one request header).
//
// Thread Safety: Safe for concurrent use. Enclaves are immutable.
type Vault struct {
	clientID string
	secret   *memguard.Enclave
	appKey   *memguard.Enclave
}

// NewVault seals the credentials. The caller should drop its own copies.
//
// Inputs:
//   - clientID: OAuth client id.
//   - clientSecret: OAuth client secret. Must not be empty.
//   - appKey: Application key. Must not be empty.
//
// Outputs:
//   - *Vault: The sealed credentials.
//   - error: ErrSecretMissing if a secret is empty.
func NewVault(clientID, clientSecret, appKey string) (*Vault, error) {
	if clientSecret == "" {
		return nil, fmt.Errorf("%w: client secret", ErrSecretMissing)
	}
	if appKey == "" {
		return nil, fmt.Errorf("%w: app key", ErrSecretMissing)
	}
	return &Vault{
		clientID: clientID,
		secret:   memguard.NewEnclave([]byte(clientSecret)),
		appKey:   memguard.NewEnclave([]byte(appKey)),
	}, nil
}

// ClientID returns the client id.
func (v *Vault) ClientID() string { return v.clientID }

// ClientSecret decrypts the client secret.
func (v *Vault) ClientSecret() (string, error) { return reveal(v.secret) }

// AppKey decrypts the application key.
func (v *Vault) AppKey() (string, error) { return reveal(v.appKey) }

func reveal(e *memguard.Enclave) (string, error) {
	if e == nil {
		return "", ErrSecretMissing
	}
	buf, err := e.Open()
	if err != nil {
		return "", fmt.Errorf("gateway: opening enclave: %w", err)
	}
	defer buf.Destroy()
	return string(buf.Bytes()), nil
}
