// keytool generates or inspects execution keys for relayd.
//
//	keytool new            generate a fresh key and print key + address
//	keytool addr <hexkey>  print the address for an existing key
package main

import (
	"fmt"
	"os"

	"github.com/limitrelay/limitrelay/pkg/crypto"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "new":
		w, err := crypto.NewWallet()
		if err != nil {
			fatal("generate key: %v", err)
		}
		fmt.Printf("private key: %s\n", w.PrivateKeyHex())
		fmt.Printf("address:     %s\n", w.Address().Hex())

	case "addr":
		if len(os.Args) < 3 {
			usage()
		}
		w, err := crypto.WalletFromHex(os.Args[2])
		if err != nil {
			fatal("parse key: %v", err)
		}
		fmt.Printf("address: %s\n", w.Address().Hex())

	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: keytool new | keytool addr <hexkey>")
	os.Exit(2)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
