package main

import "github.com/LENAX/ctas-pipeline/pkg/cli/cmd"

func main() {
	cmd.Execute()
}
