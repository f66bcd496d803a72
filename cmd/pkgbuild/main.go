package main

import (
	"os"

	"github.com/plamolinux/pkgbuild/pkg/cli"
)

var version = "dev"

func main() {
	os.Exit(cli.Execute(version))
}
