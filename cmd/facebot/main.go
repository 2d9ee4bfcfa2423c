package main

import "facebot-go/internal/cli"

func main() {
	cli.Execute()
}
