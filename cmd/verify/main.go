package main

import (
	"fmt"
	"os"

	"github.com/code-100-precent/LingCollect/cmd/bootstrap"
	"github.com/code-100-precent/LingCollect/pkg/config"
)

func main() {
	fmt.Println("Verifying debt collection agent setup...")
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		fmt.Println("[fail] load configuration:", err)
		os.Exit(1)
	}
	checks := bootstrap.VerifySetup(cfg, ".env")
	bootstrap.PrintChecks(os.Stdout, checks)

	if !bootstrap.Passed(checks) {
		fmt.Println("\nSetup incomplete. Fix the issues above.")
		os.Exit(1)
	}
	fmt.Println("\nSetup verification complete.")
	fmt.Println("Next: start the worker with `agent`, then place a call with `dial +15551234567`.")
}
