package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/crystal-mush/mudmapper/pkg/config"
	"github.com/crystal-mush/mudmapper/pkg/feed"
	"github.com/crystal-mush/mudmapper/pkg/mapper"
	"github.com/crystal-mush/mudmapper/pkg/metrics"
	"github.com/crystal-mush/mudmapper/pkg/session"
	"github.com/crystal-mush/mudmapper/pkg/worldmap"
)

var (
	playExplore bool
	playNoInput bool
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Connect to the MUD and map while playing",
	Long: `Connects to the configured server, logs in and maps every room seen.

Lines typed on stdin are sent to the game. Lines starting with / are local:
  /route <target>   show the route to a room id, tag or name
  /walk <target>    walk there
  /auto on|off      toggle auto-play
  /where            show the current room
  /adjacent [id]    list the exits of a room (default: the current one)
  /channels         show recent channel messages
  /quit             disconnect and exit`,
	RunE: runPlay,
}

func init() {
	playCmd.Flags().BoolVar(&playExplore, "explore", false, "Use the built-in explorer for auto-play")
	playCmd.Flags().BoolVar(&playNoInput, "no-input", false, "Do not read commands from stdin")
}

func sessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		Host:             cfg.Host,
		Port:             cfg.Port,
		Username:         cfg.Username,
		Password:         cfg.Password,
		Charset:          cfg.Charset,
		TerminalType:     cfg.TerminalType,
		ConnectTimeout:   cfg.ConnectTimeout,
		NegotiateTimeout: cfg.NegotiateTimeout,
		LoginTimeout:     cfg.LoginTimeout,
		LoginDelay:       cfg.LoginDelay,
		DecisionTimeout:  cfg.DecisionTimeout,
		CommandDelay:     cfg.CommandDelay,
		AutoPlay:         cfg.AutoPlay,
		RecentLines:      cfg.RecentLines,
	}
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, graph, closeStore, err := openMap(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.New(prometheus.NewRegistry())
	agent := mapper.New(graph, mapper.Options{
		Saver:         store,
		SaveEvery:     cfg.Map.SaveInterval(),
		EnrichTimeout: cfg.EnrichTimeout,
		Logger:        logger,
		Metrics:       m,
	})

	var s *session.Session
	var decider session.Decider
	if playExplore {
		decider = explorer{snapshot: func() *worldmap.Snapshot { return s.GetMapSnapshot() }}
	}
	s, err = session.New(session.Options{
		Config:  sessionConfig(cfg),
		Agent:   agent,
		Decider: decider,
		Version: Version,
		Logger:  logger,
		Metrics: m,
	})
	if err != nil {
		agent.Close()
		return err
	}

	out := cmd.OutOrStdout()
	s.OnText(func(t session.Text) {
		if t.Prompt {
			fmt.Fprint(out, t.Text)
			return
		}
		fmt.Fprintln(out, t.Text)
	})

	hub := feed.New(s, feed.Options{Logger: logger, Metrics: m})
	hub.Attach(s)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Run(gctx) })
	serve(gctx, g, "metrics", cfg.MetricsAddr, m.Handler())
	serve(gctx, g, "feed", cfg.FeedAddr, hub.Handler())
	if !playNoInput {
		// Not part of the group: a blocked stdin read must not hold up exit.
		go readInput(gctx, cmd.InOrStdin(), out, s, cancel)
	}

	err = g.Wait()
	hub.Close()
	if cerr := agent.Close(); cerr != nil {
		logger.Error("final save failed", zap.Error(cerr))
		if err == nil {
			err = cerr
		}
	}
	return err
}

// serve runs an HTTP server in g until ctx ends. An empty addr disables it.
func serve(ctx context.Context, g *errgroup.Group, name, addr string, h http.Handler) {
	if addr == "" {
		return
	}
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error {
		logger.Info("listening", zap.String("server", name), zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s server: %w", name, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
}

// readInput forwards stdin lines to the session until ctx ends or /quit.
func readInput(ctx context.Context, in io.Reader, out io.Writer, s *session.Session, quit func()) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "/") {
			if !localCommand(ctx, out, s, line) {
				quit()
				return
			}
			continue
		}
		if err := s.Send(line); err != nil {
			fmt.Fprintf(out, "** %v\n", err)
		}
	}
}

// localCommand runs a /command and reports whether to keep reading.
func localCommand(ctx context.Context, out io.Writer, s *session.Session, line string) bool {
	verb, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)
	switch verb {
	case "quit":
		return false
	case "auto":
		s.SetAutoPlay(arg == "on")
		fmt.Fprintf(out, "** auto-play %v\n", s.AutoPlay())
	case "where":
		snap := s.GetMapSnapshot()
		if r, ok := snap.Room(snap.CurrentRoomID); ok {
			fmt.Fprintf(out, "** %s (%s) in %s\n", r.Name, r.ID, r.Area)
		} else {
			fmt.Fprintln(out, "** position unknown")
		}
	case "route":
		r, err := s.GetRouteTo(ctx, arg)
		if err != nil {
			fmt.Fprintf(out, "** %v\n", err)
			break
		}
		fmt.Fprintf(out, "** %s: %s\n", r.Target.Name, printable(r.Commands))
	case "walk":
		if err := s.Walk(ctx, arg); err != nil {
			fmt.Fprintf(out, "** %v\n", err)
		}
	case "adjacent":
		exits, err := s.Adjacent(ctx, arg)
		if err != nil {
			fmt.Fprintf(out, "** %v\n", err)
			break
		}
		if len(exits) == 0 {
			fmt.Fprintln(out, "** no known exits")
		}
		for _, n := range exits {
			mark := ""
			if !n.Explored {
				mark = " (unexplored)"
			}
			fmt.Fprintf(out, "** %-6s %s (%s)%s\n", n.Direction, n.Name, n.ID, mark)
		}
	case "channels":
		msgs := s.Dispatcher().Channels()
		if len(msgs) == 0 {
			fmt.Fprintln(out, "** no channel messages")
		}
		for _, m := range msgs {
			fmt.Fprintf(out, "** [%s] %s: %s\n", m.Channel, m.Talker, m.Text)
		}
	default:
		fmt.Fprintf(out, "** unknown command /%s\n", verb)
	}
	return true
}

func printable(commands string) string {
	if commands == "" {
		return "(here)"
	}
	return commands
}
