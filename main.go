package main

import "virtual-tourist-backend/cmd"

func main() {
	cmd.Run()
}
