package main

import (
	"log"

	"oggmux"
)

func main() {
	if err := oggmux.Run(); err != nil {
		log.Fatal(err)
	}
}
