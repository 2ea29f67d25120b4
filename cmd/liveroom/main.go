package main

import "github.com/navikt/liveroom/internal/cli"

func main() {
	cli.Execute()
}
