// Command clash runs one headless match client against the shared
// Postgres and redis backends. Two copies started with different
// -username values will pair up, mix, and record a result.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"chroma-clash/internal/broadcast"
	"chroma-clash/internal/color"
	"chroma-clash/internal/config"
	"chroma-clash/internal/db"
	"chroma-clash/internal/duel"
	"chroma-clash/internal/store"

	"github.com/sirupsen/logrus"
)

func main() {
	username := flag.String("username", "", "player username")
	practice := flag.Bool("practice", false, "run a solo practice round instead of matchmaking")
	flag.Parse()

	if *username == "" {
		logrus.Fatal("-username is required")
	}

	if err := config.LoadDotEnv(".env"); err != nil {
		logrus.Warnf("failed to load .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}

	conn, err := db.Open()
	if err != nil {
		logrus.Fatalf("open database: %v", err)
	}
	if err := db.Migrate(conn); err != nil {
		logrus.Fatalf("migrate database: %v", err)
	}

	ctx := context.Background()
	rdb, err := broadcast.Dial(ctx, cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
	if err != nil {
		logrus.Fatalf("connect broker: %v", err)
	}

	sessions := store.NewPostgres(conn, rdb)
	playerID, err := sessions.EnsurePlayer(ctx, *username)
	if err != nil {
		logrus.Fatalf("register player: %v", err)
	}
	logrus.Infof("playing as username=%s player_id=%s", *username, playerID)

	palette := color.DefaultPalette()
	done := make(chan struct{})
	client := duel.NewClient(
		duel.Deps{
			PlayerID:  playerID,
			Sessions:  sessions,
			Records:   sessions,
			Broadcast: broadcast.NewRedis(rdb),
			Mixer:     palette,
			Targets:   palette,
		},
		duel.Config{
			PollInterval:   time.Duration(cfg.LobbyPollSeconds) * time.Second,
			BattleDuration: time.Duration(cfg.BattleDurationSeconds) * time.Second,
		},
		duel.Callbacks{
			LobbyStatus: func(text string) {
				fmt.Println("lobby:", text)
			},
			OpponentJoined: func() {
				fmt.Println("opponent found, type 'ready' to start")
			},
			ReadinessChanged: func(player duel.Role, ready bool) {
				fmt.Printf("%s ready=%v\n", player, ready)
			},
			BattleStarted: func() {
				fmt.Println("battle started, pick inputs with 'pick <color>' and mix with 'mix'")
			},
			OpponentAttempt: func(player duel.Role, mixed color.Color, difference float64) {
				fmt.Printf("%s mixed %s (difference %.1f)\n", player, mixed.Hex, difference)
			},
			BattleEnded: func(res duel.Result) {
				fmt.Printf("battle over: winner=%s reason=%s\n", res.Winner, res.Reason)
				close(done)
			},
		},
	)

	if *practice {
		if err := client.StartPractice(); err != nil {
			logrus.Fatalf("start practice: %v", err)
		}
	} else if err := client.EnterQueue(ctx); err != nil {
		logrus.Fatalf("enter queue: %v", err)
	}

	go repl(ctx, client, palette)
	<-done
}

// repl reads one command per line from stdin and drives the client.
func repl(ctx context.Context, client *duel.Client, palette *color.Palette) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		cmd, arg, _ := strings.Cut(line, " ")
		var err error
		switch cmd {
		case "":
		case "ready":
			err = client.Ready(ctx)
		case "pick":
			var col color.Color
			col, err = palette.ByName(arg)
			if err == nil {
				err = client.SelectInput(col)
			}
		case "mix":
			var attempt *duel.Attempt
			attempt, err = client.AttemptMix(ctx)
			if err == nil {
				fmt.Printf("mixed %s (difference %.1f)\n", attempt.Color.Hex, attempt.Difference)
			}
		case "status":
			if target, ok := client.Target(); ok {
				fmt.Printf("target %s %s\n", target.Name, target.Hex)
			}
			for _, sel := range client.Selection() {
				fmt.Printf("selected %s %s\n", sel.Name, sel.Hex)
			}
			if best := client.Best(); best != nil {
				fmt.Printf("best %s (difference %.1f)\n", best.Color.Hex, best.Difference)
			}
		case "cancel":
			err = client.Cancel(ctx)
		case "forfeit":
			err = client.Forfeit(ctx)
		case "quit":
			os.Exit(0)
		default:
			fmt.Println("commands: ready, pick <color>, mix, status, cancel, forfeit, quit")
		}
		if err != nil {
			fmt.Println("error:", err)
		}
	}
}
