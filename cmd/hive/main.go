// Package main provides the entry point for the hive CLI.
package main

import "yqhp/kambo-hive/cmd"

func main() {
	cmd.Execute()
}
