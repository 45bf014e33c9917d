package main

import "github.com/KipkuruiYegon/MPESA-Telegram-Bot/cmd"

func main() {
	cmd.Execute()
}
