package ordesk

// Version is the library version, overridable at build time via
// -ldflags "-X github.com/ordesk/ordesk.Version=...".
var Version = "0.3.0"
