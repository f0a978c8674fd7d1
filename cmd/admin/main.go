package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"casguard/backend/internal/models"
	"casguard/backend/internal/storage"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	storageSvc := storage.NewStorageService(db, nil) // No redis needed for admin CLI

	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "chats":
		if err := listChats(storageSvc); err != nil {
			log.Fatalf("Error listing chats: %v", err)
		}
	case "stats":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin stats <chat_id>")
			os.Exit(1)
		}
		chatID := parseID(os.Args[2])
		if err := printStats(storageSvc, chatID); err != nil {
			log.Fatalf("Error loading stats: %v", err)
		}
	case "whitelist":
		if len(os.Args) != 4 {
			fmt.Println("Usage: admin whitelist <chat_id> <user_id>")
			os.Exit(1)
		}
		chatID, userID := parseID(os.Args[2]), parseID(os.Args[3])
		already, err := storageSvc.IsWhitelisted(chatID, userID)
		if err != nil {
			log.Fatalf("Error checking whitelist: %v", err)
		}
		if already {
			fmt.Printf("User %d is already whitelisted in chat %d.\n", userID, chatID)
			return
		}
		if err := storageSvc.AddToWhitelist(chatID, userID); err != nil {
			log.Fatalf("Error whitelisting user: %v", err)
		}
		fmt.Printf("User %d whitelisted in chat %d.\n", userID, chatID)
	case "mode":
		if len(os.Args) != 4 {
			fmt.Println("Usage: admin mode <chat_id> <notify|quickban>")
			os.Exit(1)
		}
		chatID := parseID(os.Args[2])
		mode := models.Mode(os.Args[3])
		if !mode.Valid() {
			fmt.Printf("Unknown mode %q. Use notify or quickban.\n", os.Args[3])
			os.Exit(1)
		}
		if err := storageSvc.SetChatMode(chatID, mode); err != nil {
			log.Fatalf("Error setting mode: %v", err)
		}
		fmt.Printf("Chat %d set to mode %s.\n", chatID, mode)
	default:
		usage()
	}
}

func usage() {
	fmt.Println("Usage: admin <chats|stats|whitelist|mode> [args]")
	os.Exit(1)
}

func parseID(arg string) int64 {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		fmt.Printf("Invalid id %q. Please provide an integer.\n", arg)
		os.Exit(1)
	}
	return id
}

func listChats(s storage.Storage) error {
	chats, err := s.ListChats()
	if err != nil {
		return err
	}
	for _, chat := range chats {
		fmt.Printf("%d\t%s\n", chat.ChatID, chat.Title)
	}
	return nil
}

func printStats(s storage.Storage, chatID int64) error {
	now := time.Now()
	windows := []struct {
		label string
		d     time.Duration
	}{
		{"24h", 24 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"30d", 30 * 24 * time.Hour},
	}
	for _, w := range windows {
		stats, err := s.ActionStatsSince(chatID, now.Add(-w.d))
		if err != nil {
			return err
		}
		fmt.Printf("%s: total %d | notify %d | quickban %d | local %d | cas %d | failed %d | unique %d\n",
			w.label, stats.Total, stats.Notify, stats.Quickban, stats.Local, stats.CAS, stats.Failed, stats.UniqueUsers)
	}
	return nil
}
