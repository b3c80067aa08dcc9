// Command syncclient joins a channel with a virtual player and keeps it in
// sync. Lines read from stdin drive the player and the chat.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/sharetube/watchparty/internal/app"
	"github.com/sharetube/watchparty/internal/client"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/playback"
)

const help = `commands:
  play | pause | seek <seconds> | load <video-ref>
  say <text>
  promote <member-id> | demote <member-id> | kick <member-id>
  status | quit`

func main() {
	serverURL := pflag.String("server", "http://localhost:80", "Server base URL")
	channelID := pflag.String("channel", "", "Channel to join")
	token := pflag.String("token", "", "Member token, skips joining")
	create := pflag.String("create", "", "Create a channel with this name")
	displayName := pflag.String("name", "guest", "Display name")
	logLevel := pflag.String("log-level", "WARN", "Logging level")
	pflag.Parse()

	logger, err := app.NewLogger(os.Stderr, *logLevel)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	creds, err := credentials(ctx, *serverURL, *channelID, *token, *create, *displayName)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("channel %s, identity %s\ntoken %s\n%s\n", creds.ChannelID, creds.Identity, creds.Token, help)

	if err := run(ctx, *serverURL, creds, logger); err != nil && !errors.Is(err, context.Canceled) {
		stop()
		log.Fatal(err)
	}
}

func credentials(ctx context.Context, serverURL, channelID, token, create, displayName string) (client.Credentials, error) {
	switch {
	case create != "":
		return client.CreateChannel(ctx, serverURL, create, displayName)
	case channelID == "":
		return client.Credentials{}, errors.New("either --create or --channel is required")
	case token != "":
		return client.Credentials{ChannelID: channelID, Token: token}, nil
	}

	return client.JoinChannel(ctx, serverURL, channelID, displayName)
}

func run(ctx context.Context, serverURL string, creds client.Credentials, logger *slog.Logger) error {
	session := client.NewSession(&client.Config{
		ServerURL: serverURL,
		ChannelID: creds.ChannelID,
		Token:     creds.Token,
	}, logger)
	defer session.Close()

	player := &virtualPlayer{}
	sync := playback.NewSynchronizer(player, session, session, logger, &playback.Config{
		OnPublishError: func(err error) {
			fmt.Printf("! publish failed: %v\n", err)
		},
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sync.Run(gctx)
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case role := <-session.Roles():
				sync.SetRole(role)
				fmt.Printf("* role: %s\n", role)
			case members := <-session.Members():
				fmt.Printf("* %d members\n", len(members))
			case msg := <-session.Messages():
				printMessage(msg)
			}
		}
	})

	// reading stdin cannot be interrupted, so the reader stays outside the
	// group and quitting cancels it
	go func() {
		defer cancel()
		if err := readCommands(gctx, os.Stdin, session, sync, player); err != nil {
			logger.Error("failed to read commands", "error", err)
		}
	}()

	return g.Wait()
}

func printMessage(msg domain.Message) {
	line := fmt.Sprintf("[%s] %s:", msg.Timestamp.Format("15:04:05"), msg.SenderDisplayName)
	if msg.Text != "" {
		line += " " + msg.Text
	}
	if msg.Attachment != nil {
		line += fmt.Sprintf(" <%s %s>", msg.Attachment.Kind, msg.Attachment.Ref)
	}
	fmt.Println(line)
}

func readCommands(ctx context.Context, r io.Reader, session *client.Session, sync *playback.Synchronizer, player *virtualPlayer) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		cmd, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		arg = strings.TrimSpace(arg)

		var err error
		switch cmd {
		case "":
		case "play":
			player.Play()
			sync.OnPlay(player.Position())
		case "pause":
			player.Pause()
			sync.OnPause(player.Position())
		case "seek":
			var pos float64
			if pos, err = strconv.ParseFloat(arg, 64); err == nil {
				player.Seek(pos)
				sync.OnSeek(pos)
			}
		case "load":
			player.Load(arg)
			player.Play()
			sync.OnVideoChanged(arg)
		case "say":
			_, err = session.SendMessage(ctx, uuid.NewString(), arg, nil)
		case "promote":
			err = session.Promote(ctx, arg)
		case "demote":
			err = session.Demote(ctx, arg)
		case "kick":
			err = session.Remove(ctx, arg)
		case "status":
			fmt.Printf("* %s as %s, %q at %.1fs playing=%t rev=%d\n",
				sync.State(), sync.Role(), player.VideoRef(), player.Position(), player.IsPlaying(), sync.LastAppliedRevision())
		case "quit":
			return nil
		default:
			fmt.Println(help)
		}
		if err != nil {
			fmt.Printf("! %s: %v\n", cmd, err)
		}
	}

	return scanner.Err()
}
