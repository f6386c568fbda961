// Package secret resolves secret-bearing configuration values.
//
// Values go through strict environment expansion (see ExpandEnvStrict) and
// then through registered providers when they carry a reference:
//   - Full value:  secretref:file:/run/secrets/gemini_api_key
//   - Inline use:  Bearer secretref:env:GEMINI_API_KEY
//
// FileProvider and EnvProvider are built in.
package secret
