package main

import (
	"fmt"
	"os"

	"github.com/code-100-precent/LingCollect/pkg/config"
	"github.com/code-100-precent/LingCollect/pkg/controlplane"
)

func main() {
	room, participant := "test-debt-collection", "Test User"
	if len(os.Args) > 1 {
		room = os.Args[1]
	}
	if len(os.Args) > 2 {
		participant = os.Args[2]
	}

	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Println("Missing LiveKit credentials:", err)
		os.Exit(1)
	}

	token, err := controlplane.RoomJoinToken(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, room, participant, participant)
	if err != nil {
		fmt.Println("Sign token:", err)
		os.Exit(1)
	}
	fmt.Printf("Room: %s\nLiveKit URL: %s\nRoom Token: %s\n", room, cfg.LiveKit.URL, token)
	fmt.Printf("\nThis token allows %q to join room %q\n", participant, room)
}
