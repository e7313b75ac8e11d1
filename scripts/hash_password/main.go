package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/seokjunHwang/Quant/internal/api"
)

// Prints a bcrypt hash for ADMIN_PASSWORD_HASH. The password is read from
// the first argument or, when absent, from stdin.
func main() {
	var pw string
	if len(os.Args) > 1 {
		pw = os.Args[1]
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(os.Stderr, "read password:", err)
			os.Exit(1)
		}
		pw = strings.TrimRight(line, "\r\n")
	}
	if pw == "" {
		fmt.Fprintln(os.Stderr, "usage: hash_password <password>")
		os.Exit(2)
	}
	h, err := api.HashPassword(pw)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hash:", err)
		os.Exit(1)
	}
	fmt.Println(h)
}
