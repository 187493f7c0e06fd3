// Command mc-cli is a command-line client for the match and chat service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/matchchat/internal/auth"
	"github.com/and161185/matchchat/internal/convert"
	"github.com/and161185/matchchat/internal/model"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "matchchat")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "matchchat")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time, userID uuid.UUID) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp, UserID: userID.String()})
}

func loadToken() (string, uuid.UUID, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", uuid.Nil, err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", uuid.Nil, err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", uuid.Nil, errors.New("no valid token (run token first)")
	}
	id, err := uuid.FromString(tf.UserID)
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("token file: bad user id: %w", err)
	}
	return tf.AccessToken, id, nil
}

// ---- utils ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		fmt.Fprintf(os.Stderr, "api error: status=%d msg=%s\n", ae.Status, ae.Message)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func mustID(name, v string) uuid.UUID {
	id, err := uuid.FromString(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "need a valid -%s uuid\n", name)
		os.Exit(1)
	}
	return id
}

func usage() {
	fmt.Fprintf(os.Stderr, `mc-cli
Usage:
  mc-cli -addr http://HOST:PORT <cmd> [args]

Commands:
  version
  token      -key <jwt key> [-user <uuid>] [-tier premium] [-ttl 24h]   (saves token)
  like       -to <uuid>
  dislike    -to <uuid>
  status
  matches    [-blocked]
  block      -id <uuid>
  unblock    -id <uuid>
  blocks
  history    -with <uuid> [-before <uuid>] [-n 50]
  delete-message       -id <uuid>
  delete-conversation  -with <uuid>
  read       -id <uuid>
  chat       -with <uuid> [-resend 5s]
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands against the REST API and the websocket transport.
func main() {
	// global flags
	addr := flag.String("addr", "http://localhost:8080", "server base URL")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	switch cmd {
	case "version":
		fmt.Printf("mc-cli %s (%s)\n", version, buildDate)
		return
	case "token":
		cmdToken(args)
		return
	case "chat":
		cmdChat(*addr, args)
		return
	}

	token, _, err := loadToken()
	if err != nil {
		fail(err)
	}
	cli := newAPI(*addr, token)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {
	case "like", "dislike":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		to := fs.String("to", "", "target user id")
		_ = fs.Parse(args)
		body := map[string]uuid.UUID{"toUserId": mustID("to", *to)}
		if cmd == "dislike" {
			if err := cli.do(ctx, http.MethodPost, "/api/dislike", body, nil); err != nil {
				fail(err)
			}
			fmt.Println("ok")
			return
		}
		var out struct {
			Matched bool `json:"matched"`
		}
		if err := cli.do(ctx, http.MethodPost, "/api/like", body, &out); err != nil {
			fail(err)
		}
		printJSON(out)

	case "status":
		var out convert.StatusDTO
		if err := cli.do(ctx, http.MethodGet, "/api/matchStatus", nil, &out); err != nil {
			fail(err)
		}
		printJSON(out)

	case "matches":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		blocked := fs.Bool("blocked", false, "include users you blocked")
		_ = fs.Parse(args)
		path := "/api/matches"
		if *blocked {
			path += "?includeBlockedByMe=true"
		}
		var out []convert.MatchDTO
		if err := cli.do(ctx, http.MethodGet, path, nil, &out); err != nil {
			fail(err)
		}
		printJSON(out)

	case "block", "unblock":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "user id")
		_ = fs.Parse(args)
		body := map[string]uuid.UUID{"blockedUserId": mustID("id", *id)}
		if cmd == "block" {
			if err := cli.do(ctx, http.MethodPost, "/api/block", body, nil); err != nil {
				fail(err)
			}
			fmt.Println("ok")
			return
		}
		var out struct {
			Unblocked bool `json:"unblocked"`
		}
		if err := cli.do(ctx, http.MethodDelete, "/api/block", body, &out); err != nil {
			fail(err)
		}
		printJSON(out)

	case "blocks":
		var out struct {
			Blocked []uuid.UUID `json:"blocked"`
		}
		if err := cli.do(ctx, http.MethodGet, "/api/blocks", nil, &out); err != nil {
			fail(err)
		}
		printJSON(out)

	case "history":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		with := fs.String("with", "", "counterpart id")
		before := fs.String("before", "", "cursor: oldest id from the previous page")
		n := fs.Int("n", 0, "page size")
		_ = fs.Parse(args)
		mustID("with", *with)
		var out convert.HistoryDTO
		if err := cli.do(ctx, http.MethodGet, historyPath(*with, *before, *n), nil, &out); err != nil {
			fail(err)
		}
		printJSON(out)

	case "delete-message", "read":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "message id")
		_ = fs.Parse(args)
		verb := "delete"
		if cmd == "read" {
			verb = "read"
		}
		var out struct {
			Changed bool `json:"changed"`
		}
		path := fmt.Sprintf("/api/message/%s/%s", mustID("id", *id), verb)
		if err := cli.do(ctx, http.MethodPatch, path, nil, &out); err != nil {
			fail(err)
		}
		printJSON(out)

	case "delete-conversation":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		with := fs.String("with", "", "counterpart id")
		_ = fs.Parse(args)
		var out struct {
			Deleted int64 `json:"deleted"`
		}
		path := fmt.Sprintf("/api/conversation/%s/delete", mustID("with", *with))
		if err := cli.do(ctx, http.MethodPatch, path, nil, &out); err != nil {
			fail(err)
		}
		printJSON(out)

	default:
		usage()
	}
}

// cmdToken mints a development token locally, standing in for the identity service.
func cmdToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	key := fs.String("key", os.Getenv("MATCHCHAT_JWT_KEY"), "HS256 key shared with the server")
	user := fs.String("user", "", "user id (new random id when empty)")
	tier := fs.String("tier", model.TierPremium.String(), "subscription tier")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	_ = fs.Parse(args)
	if *key == "" {
		fmt.Fprintln(os.Stderr, "need -key")
		os.Exit(1)
	}

	id := uuid.Must(uuid.NewV4())
	if *user != "" {
		id = mustID("user", *user)
	}
	t, err := model.ParseTier(*tier)
	if err != nil {
		fail(err)
	}
	tok, exp, err := auth.NewIssuer([]byte(*key), *ttl).Issue(auth.Identity{UserID: id, Tier: t})
	if err != nil {
		fail(err)
	}
	if err := saveToken(tok, exp, id); err != nil {
		fail(err)
	}
	fmt.Println(id)
}

func cmdChat(addr string, args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	with := fs.String("with", "", "counterpart id")
	resend := fs.Duration("resend", 5*time.Second, "resend unacknowledged messages after")
	_ = fs.Parse(args)
	peer := mustID("with", *with)

	token, self, err := loadToken()
	if err != nil {
		fail(err)
	}
	target, err := wsURL(addr)
	if err != nil {
		fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var page convert.HistoryDTO
	hctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err = newAPI(addr, token).do(hctx, http.MethodGet, historyPath(peer.String(), "", 0), nil, &page)
	cancel()
	if err != nil {
		fail(err)
	}

	if err := runChat(ctx, target, token, self, peer, &page, os.Stdin, os.Stdout, *resend); err != nil && !errors.Is(err, context.Canceled) {
		fail(err)
	}
}
