package main

import (
	"flag"
	"fmt"
	"os"

	"treasury-backend/internal/config"
	"treasury-backend/internal/handlers"
)

func main() {
	sessionID := flag.String("session", "dev-session", "session id to embed in the token")
	wallet := flag.String("wallet", "0x742d35Cc6634C0532925a3b0F26750C66d78EB66", "wallet address to embed")
	chainID := flag.Int64("chain", 1, "chain id to embed")
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	if err := config.LoadConfig(*configPath); err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	tokenString, err := handlers.GenerateJWTToken(*sessionID, *wallet, *chainID)
	if err != nil {
		fmt.Printf("Error generating token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("============================================================")
	fmt.Println("JWT Token Generated for Testing")
	fmt.Println("============================================================")
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(tokenString)
	fmt.Println()
	fmt.Println("Claims:")
	fmt.Printf("  Session ID: %s\n", *sessionID)
	fmt.Printf("  Wallet Address: %s\n", *wallet)
	fmt.Printf("  Chain ID: %d\n", *chainID)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println()
	fmt.Printf("export JWT_TOKEN='%s'\n", tokenString)
	fmt.Println()
}
