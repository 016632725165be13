package main

import (
	"log"

	tool "github.com/ayesh156/roxeleye-crud/internal/tools/seed"
)

func main() {
	if err := tool.NewRootCommand().Execute(); err != nil {
		log.Fatal(err)
	}
}
