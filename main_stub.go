//go:build !tinygo

package main

// This file lets the regular Go toolchain (staticcheck, go vet, go test)
// build the package. The firmware entry point is in main.go (TinyGo only);
// cmd/sim runs the same pipeline on a host.

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(os.Stderr, "oledanim: firmware builds with tinygo; run cmd/sim on a host")
	os.Exit(2)
}
