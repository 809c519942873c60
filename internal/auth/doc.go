// Package auth provides helpers for inspecting backend-issued JWTs.
package auth
