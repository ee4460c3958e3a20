package main

import "github.com/andresmejia3/facewatch/cmd"

func main() {
	cmd.Execute()
}
