package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/hitoshi/expensebook/internal/auth"
	"github.com/hitoshi/expensebook/internal/config"
	"github.com/hitoshi/expensebook/internal/metrics"
)

const addUserUsage = `usage: expensebook adduser "<full name>" <username> <email>`

// parseAddUserArgs はadduserの引数を解析する。パスワードは引数では受け取らない。
func parseAddUserArgs(args []string) (auth.SignUpInput, error) {
	if len(args) != 3 {
		return auth.SignUpInput{}, errors.New(addUserUsage)
	}
	return auth.SignUpInput{
		FullName: args[0],
		Username: args[1],
		Email:    args[2],
	}, nil
}

// readPassword はパスワードを1行読み込む。
// 入力が端末の場合はエコーせずに2回入力させ、一致を確認する。
func readPassword(in io.Reader, out io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, "Password: ")
		first, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprint(out, "Confirm password: ")
		second, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		if string(first) != string(second) {
			return "", errors.New("passwords do not match")
		}
		return string(first), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// runAddUser はアカウントを作成する。サインアップと同じ検証・一意性チェックを通す。
func runAddUser(cfg *config.Config, args []string, in io.Reader, out io.Writer) error {
	input, err := parseAddUserArgs(args)
	if err != nil {
		return err
	}
	input.Password, err = readPassword(in, out)
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	return addUser(ctx, cfg, st, input, out)
}

func addUser(ctx context.Context, cfg *config.Config, st *stores, input auth.SignUpInput, out io.Writer) error {
	svcs, err := newServices(cfg, st, metrics.Nop{}, slog.Default())
	if err != nil {
		return err
	}

	session, err := svcs.auth.SignUp(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to add user: %w", err)
	}

	fmt.Fprintf(out, "created account %s (%s)\n", session.Account.ID, session.Account.Username)
	return nil
}
