package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/bloktest/session-backend/internal/config"
	"github.com/bloktest/session-backend/internal/gateway"
	"github.com/bloktest/session-backend/internal/logger"
	"github.com/bloktest/session-backend/internal/session"
	"github.com/bloktest/session-backend/internal/store"
)

// blokcli is a terminal quiz client for smoke-testing the session flow
// against a running core API without a browser.
func main() {
	cfg := config.Load()
	log := logger.Setup("warn", cfg.LogFormat)

	ctx := context.Background()
	gw := gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayTimeout, log)
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== BlokTest CLI ===")

	// ─── Login ─────────────────────────────────────────────────────────
	fmt.Print("Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)

	fmt.Print("Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading password")
		return
	}

	token, user, err := gw.Login(ctx, email, string(bytePassword))
	if err != nil {
		fmt.Printf("Login failed: %v\n", err)
		return
	}
	fmt.Printf("Welcome, %s\n\n", user.FullName)

	// ─── Pick a Block ──────────────────────────────────────────────────
	blocks, err := gw.ListBlocks(ctx, token)
	if err != nil {
		fmt.Printf("Could not load blocks: %v\n", err)
		return
	}
	for i, b := range blocks {
		fmt.Printf("  [%d] %s\n", i+1, b.Name)
	}
	fmt.Print("Block number: ")
	choiceStr, _ := reader.ReadString('\n')
	choice, err := strconv.Atoi(strings.TrimSpace(choiceStr))
	if err != nil || choice < 1 || choice > len(blocks) {
		fmt.Println("Invalid choice")
		return
	}
	block := blocks[choice-1]

	// ─── Run the Session ───────────────────────────────────────────────
	ctrl := session.NewController(session.Options{
		UserID:   user.ID,
		Token:    token,
		Gateway:  gw,
		Store:    store.NewMemorySnapshotStore(),
		Log:      log,
		Duration: int(cfg.SessionDuration.Seconds()),
	})

	if err := ctrl.Start(ctx, block.ID); err != nil {
		fmt.Printf("Could not start quiz: %v\n", err)
		return
	}
	defer ctrl.Stop()

	fmt.Println("\nCommands: <option number> answer, n next, p prev, g <idx> goto, f finish, q quit")

	for {
		st := ctrl.State()
		if st.CurrentQuestion == nil {
			fmt.Println("No questions in this block")
			return
		}

		q := st.CurrentQuestion
		fmt.Printf("\n[%s] Q%d/%d (%d answered)\n", st.FormattedRemaining, st.CurrentIndex+1, st.TotalQuestions, st.AnsweredCount)
		fmt.Printf("%s\n", q.Prompt)
		for i, opt := range q.Options {
			marker := " "
			if st.Answers[q.ID] == opt.ID {
				marker = "*"
			}
			fmt.Printf("  %s[%d] %s\n", marker, i+1, opt.Value)
		}

		fmt.Print("> ")
		line, _ := reader.ReadString('\n')
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "n":
			ctrl.Next()
		case "p":
			ctrl.Prev()
		case "g":
			if len(fields) < 2 {
				fmt.Println("Usage: g <index>")
				continue
			}
			idx, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Println("Index must be a number")
				continue
			}
			ctrl.GoTo(idx - 1)
		case "f":
			summary, err := ctrl.Finish(ctx)
			if err != nil {
				if errors.Is(err, session.ErrSubmitInProgress) {
					fmt.Println("Already submitting...")
					continue
				}
				fmt.Printf("Submission failed: %v (use f again to retry)\n", err)
				continue
			}
			fmt.Printf("\nDone! Total score: %.2f\n", summary.TotalScore)
			return
		case "q":
			fmt.Println("Attempt abandoned. Bye.")
			return
		default:
			opt, err := strconv.Atoi(fields[0])
			if err != nil || opt < 1 || opt > len(q.Options) {
				fmt.Println("Unknown command")
				continue
			}
			if err := ctrl.SelectAnswer(ctx, q.ID, q.Options[opt-1].ID); err != nil {
				fmt.Printf("Could not save answer: %v\n", err)
				continue
			}
			ctrl.Next()
		}
	}
}
