package main

import (
	"os"

	"horse.fit/cargoscoop/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
