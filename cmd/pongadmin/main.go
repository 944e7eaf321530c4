package main

import (
	_ "github.com/joho/godotenv/autoload"

	"github.com/mcoot/pongladder/internal/admin"
)

func main() {
	admin.Execute()
}
