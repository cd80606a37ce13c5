// Command sealctl manages sealed secrets for the treasury service. It
// generates key-encryption keys and seals or opens secret files, so the
// custody secret never has to live plaintext in the environment.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/example/payroll-treasury/internal/crypto"
)

const label = "custody-secret"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "genkey":
		err = genkey(os.Args[2:])
	case "seal":
		err = seal(os.Args[2:])
	case "open":
		err = open(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "sealctl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  sealctl genkey <kek-file>
  sealctl seal   <kek-file> <out-file>   (reads the secret from stdin)
  sealctl open   <kek-file> <sealed-file>`)
}

func genkey(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("genkey expects <kek-file>")
	}
	if err := crypto.GenerateKeyFile(args[0]); err != nil {
		return err
	}
	fmt.Println("wrote", args[0])
	return nil
}

func seal(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("seal expects <kek-file> <out-file>")
	}
	keeper, err := crypto.NewKeeperFromFile(args[0])
	if err != nil {
		return err
	}

	secret, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && secret == "" {
		return fmt.Errorf("read secret from stdin: %w", err)
	}
	secret = strings.TrimRight(secret, "\r\n")
	if secret == "" {
		return fmt.Errorf("empty secret")
	}

	if err := keeper.SealToFile(args[1], []byte(secret), label); err != nil {
		return err
	}
	fmt.Println("wrote", args[1])
	return nil
}

func open(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("open expects <kek-file> <sealed-file>")
	}
	keeper, err := crypto.NewKeeperFromFile(args[0])
	if err != nil {
		return err
	}
	secret, err := keeper.OpenFile(args[1], label)
	if err != nil {
		return err
	}
	fmt.Println(string(secret))
	return nil
}
