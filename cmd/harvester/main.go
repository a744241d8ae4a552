package main

import (
	"hltvharvest/cmd/harvester/cmd"
)

func main() {
	cmd.Execute()
}
