// taskctl はタスク管理APIのコマンドラインクライアントです。
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/amultiwary/TaskApp/internal/dashboard"
	"github.com/amultiwary/TaskApp/internal/models"
)

var Version = "dev"

const defaultServer = "http://localhost:8080"

// env は入出力と端末かどうかをまとめたものです。テストでは差し替えます。
type env struct {
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
	interactive bool
	httpClient  *http.Client
}

// app はサブコマンドが共有するコントローラーと入出力です。
type app struct {
	env
	ctrl      *dashboard.Controller
	in        *bufio.Reader
	assumeYes bool
}

func main() {
	fd := os.Stdin.Fd()
	e := env{
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		interactive: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
	}
	if err := newRootCmd(e).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(e env) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("taskctl")
	v.AutomaticEnv()
	v.SetDefault("server", defaultServer)

	a := &app{env: e, in: bufio.NewReader(e.stdin)}

	rootCmd := &cobra.Command{
		Use:           "taskctl",
		Short:         "Command line client for the task API",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(v)
		},
	}
	rootCmd.SetOut(e.stdout)
	rootCmd.SetErr(e.stderr)

	flags := rootCmd.PersistentFlags()
	flags.String("server", defaultServer, "API server URL ($TASKCTL_SERVER)")
	flags.String("session-file", "", "where the session is stored ($TASKCTL_SESSION_FILE)")
	flags.Bool("verbose", false, "log requests and rollbacks to stderr")
	_ = v.BindPFlag("server", flags.Lookup("server"))
	_ = v.BindPFlag("session_file", flags.Lookup("session-file"))
	_ = v.BindPFlag("verbose", flags.Lookup("verbose"))

	rootCmd.AddCommand(
		registerCmd(a),
		loginCmd(a),
		logoutCmd(a),
		whoamiCmd(a),
		listCmd(a),
		statsCmd(a),
		addCmd(a),
		editCmd(a),
		toggleCmd(a),
		deleteCmd(a),
	)
	return rootCmd
}

// setup はセッションストアとコントローラーを用意し、保存済みのセッションを読み込みます。
func (a *app) setup(v *viper.Viper) error {
	path := v.GetString("session_file")
	if path == "" {
		var err error
		if path, err = dashboard.DefaultSessionPath(); err != nil {
			return err
		}
	}

	level := slog.LevelError
	if v.GetBool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))

	httpClient := a.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	client := dashboard.NewClient(v.GetString("server"), httpClient)
	a.ctrl = dashboard.NewController(client, dashboard.NewFileSessionStore(path), a, logger)

	if _, err := a.ctrl.Resume(); err != nil && !errors.Is(err, dashboard.ErrNoSession) {
		return err
	}
	return nil
}

// Confirm は削除の前に標準入力で y/N を尋ねます。
func (a *app) Confirm(_ context.Context, task models.Task) (bool, error) {
	if a.assumeYes {
		return true, nil
	}
	if !a.interactive {
		return false, errors.New("refusing to delete without confirmation; pass --yes")
	}
	fmt.Fprintf(a.stdout, "Delete %q? [y/N]: ", task.Title)
	answer, err := a.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func (a *app) readLine() (string, error) {
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// prompt は値が空の場合に標準入力から読み込みます。
func (a *app) prompt(label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(a.stdout, "%s: ", label)
	return a.readLine()
}

func notLoggedIn(err error) error {
	if errors.Is(err, dashboard.ErrNotLoggedIn) {
		return errors.New("not logged in; run `taskctl login` first")
	}
	return err
}
