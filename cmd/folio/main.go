package main

import (
	"log"

	"github.com/MrSnakeDoc/folio/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ folio failed: %v", err)
	}
}
