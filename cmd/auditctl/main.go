package main

import (
	"github.com/joho/godotenv"

	"permaudit.io/internal/cli"
)

func main() {
	_ = godotenv.Load()
	cli.Execute()
}
