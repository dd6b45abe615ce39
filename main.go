package main

import (
	"fmt"
	"os"

	_ "conversation-router/docs"
	"conversation-router/internal/app"
)

// @title Conversation Router API
// @version 1.0
// @description Rule-based routing of support conversations to the AI agent, the human queue or the legacy bot.
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := app.Run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
