package main

import "github.com/matheuskafuri/autoposter/cmd"

func main() {
	cmd.Execute()
}
