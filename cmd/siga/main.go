package main

import "github.com/jhoicas/siga-gateway/internal/interfaces/cli"

func main() {
	cli.Execute()
}
