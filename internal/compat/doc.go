// Package compat holds tests that drive the mock server with the official
// OpenAI and Anthropic Go SDKs. It has no non-test code.
package compat
