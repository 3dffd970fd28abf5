// Package cryptoutil provides the stateless cryptographic primitives used by
// route handlers and the session layer:
//
//   - authenticated symmetric encryption (AES-256-GCM) for field-level
//     encryption of PHI before persistence
//   - SHA-256 fingerprinting for non-reversible identifiers
//   - cryptographically secure token generation
//   - constant-time comparison to prevent timing side-channels
//
// All functions are pure over their explicit inputs; keys are never cached.
package cryptoutil
