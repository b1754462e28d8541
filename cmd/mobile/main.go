// Package main is the C bridge the mobile apps load as a shared library
// (libpropsnap.so on Android, propsnap.framework on iOS). Strings returned to the host
// must be released with FreeString.
package main

func main() {}
