package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/peardrop/eprog/pkg/sh"
)

func init() {
	sh.SetupFlags()
}

func main() {
	flag.Parse()
	sh.New().Run(flag.Args()...)
}
