// Command hashpw prints a bcrypt hash for ADMIN_PASSWORD_HASH. The password
// is read from the first line of stdin so it stays out of shell history.
package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dailysend/internal/auth"
)

func main() {
	fmt.Fprint(os.Stderr, "password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		slog.Error("failed to read password", "err", err)
		os.Exit(1)
	}

	hash, err := auth.Hash(strings.TrimRight(line, "\r\n"))
	if err != nil {
		slog.Error("failed to hash password", "err", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
