package main

import "github.com/GregAscolab/python-microservice-test/cmd"

func main() {
	cmd.Execute()
}
