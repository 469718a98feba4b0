package main

import "github.com/kashguard/go-waas-device/cmd"

func main() {
	cmd.Execute()
}
