package main

import "github.com/kursadbilgin/notification-platform/internal/cli"

func main() {
	cli.Execute()
}
