// Package password is the engine's one-way credential capability: argon2id
// hashing with parameters self-described in the stored PHC string, and
// constant-time verification. Nothing here ever sees a stored plaintext.
package password
