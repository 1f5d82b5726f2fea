package main

import "github.com/vietddude/relaychat/internal/cli"

func main() {
	cli.Execute()
}
