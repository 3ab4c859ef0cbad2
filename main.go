// Package main is the entry point for jukebox.
package main

import "github.com/lhoume/jukebox/cmd"

func main() {
	cmd.Execute()
}
