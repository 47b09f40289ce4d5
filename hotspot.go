package hotspot

// Specifies the hotspot software version.
const Version = "1.2.0"

// Build date injected at compile time via -ldflags.
var BuildDate = "unset"
