package main

import "github.com/jvs-project/syncbridge/internal/cli"

func main() {
	cli.Execute()
}
