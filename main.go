package main

import "github.com/bsaid97/go-lwgeom-fixer/cmd"

func main() {
	cmd.Execute()
}
