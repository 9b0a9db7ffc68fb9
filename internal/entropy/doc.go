package entropy

// SOSEMANUK is named in spec.md §4.1 as an allowed CSPRNG core
// alongside Salsa20, but no SOSEMANUK implementation ships in the
// x/crypto family the rest of this module draws from (see
// DESIGN.md). CipherSOSEMANUK is kept as a registry-valid name so a
// PayloadConfiguration that names it fails with a clear "unsupported
// cipher" error at NewFromSeed time rather than an unknown-constant
// compile error, instead of being silently rejected at the registry
// level.
