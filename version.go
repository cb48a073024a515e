package main

import (
	"fmt"
	"runtime"
)

// Set at link time by release builds:
//
//	go build -ldflags "-X main.Version=$(git describe --tags) -X main.Commit=$(git rev-parse --short HEAD)"
//
// Version also feeds the kernel-IR cache key (see metadataHash), so a tool
// upgrade invalidates cached .ll files.
var (
	Version = "dev"
	Commit  = ""
)

func printVersion() {
	if Commit != "" {
		fmt.Printf("tensorc %s (%s, %s/%s)\n", Version, Commit, runtime.GOOS, runtime.GOARCH)
		return
	}
	fmt.Printf("tensorc %s (%s/%s)\n", Version, runtime.GOOS, runtime.GOARCH)
}
