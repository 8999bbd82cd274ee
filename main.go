package main

import "github.com/andresmejia3/faceroll/cmd"

func main() {
	cmd.Execute()
}
