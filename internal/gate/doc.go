// Package gate provides BiometricGate implementations. The production
// platform adapters (Face/Touch-ID) live in the mobile clients; this side
// offers a terminal confirmation prompt and a fixed-answer gate.
package gate
