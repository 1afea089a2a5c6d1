// main.go
package main

import "github.com/vitovidale/clip-processor-service/cmd"

func main() {
	cmd.Execute()
}
