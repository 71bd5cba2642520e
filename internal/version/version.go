// Package version holds the gateway version shared by the root package
// and the HTTP transport's User-Agent.
package version

// Version is the current gateway version.
const Version = "2.0.0"
