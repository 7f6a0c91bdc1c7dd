// Package id generates compact random identifiers.
//
// IDs are UUIDv4 bytes rendered as lowercase unpadded base32: 26 characters,
// URL- and filename-safe, sortable only by accident. Every persisted record
// in the system is keyed by one of these.
package id

import (
	"encoding/base32"
	"strings"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a new 26-character lowercase base32 identifier.
func NewID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ToLower(encoding.EncodeToString(value[:])), nil
}
