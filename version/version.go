package version

// Version is the version of the application, set at build time.
var Version string = "0.0.0"
