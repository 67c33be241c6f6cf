/*
Package secret holds short-lived sensitive byte material, like passwords and derived key bytes, and makes sure it's wiped when it's released.

# How it works:

A Buffer owns a private copy of some sensitive bytes.
Callers acquire a Buffer, defer its Destroy method, and only then work with the contents.
Destroy overwrites the contents with zeros, so the material is cleared on every exit path: normal returns, error returns, and panics.

# General guidelines:
  - Never hold on to the slice returned by Buffer.Bytes after Destroy is called, it will only contain zeros.
  - Copy material out of a Buffer explicitly if it needs to outlive the Buffer.
  - Use Equal to compare verifier material, since it doesn't exit early on the first mismatched byte.
  - An Auditor can be used in tests to prove that all Buffers allocated by an operation were wiped.
*/
package secret
