package main

import "chatsync/internal/app"

func main() {
	app.Run()
}
