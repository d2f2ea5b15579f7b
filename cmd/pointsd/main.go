// cmd/pointsd/main.go
package main

import (
	"os"

	"mentor-points/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
