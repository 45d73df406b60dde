package version

// StreamQVersion is overridden at build time via -ldflags.
var StreamQVersion = "v0.1.0"
