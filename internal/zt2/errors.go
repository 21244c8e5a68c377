package zt2

import "errors"

var (
	ErrGroupMismatch  = errors.New("group id mismatch")
	ErrEffectNotFound = errors.New("effect not found")
	ErrEmptyName      = errors.New("empty effect name")
)
