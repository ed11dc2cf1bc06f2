// Command contentauth signs and verifies content with RSA key
// pairs, and serves the same operations over HTTP.
//
// Usage:
//
//	contentauth keygen -out DIR
//	contentauth fingerprint -pub FILE
//	contentauth sign -key FILE (-message TEXT | -file FILE)
//	contentauth verify -pub FILE -sig SIG (-message TEXT | -file FILE)
//	contentauth bind -key FILE [-fingerprint FP] (-content TEXT | -file FILE)
//	contentauth verify-bound -pub FILE -sig SIG [-fingerprint FP] (-content TEXT | -file FILE)
//	contentauth serve [-config FILE]
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

var errInvalid = errors.New("invalid signature")

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	if err := run(os.Args[1], os.Args[2:], os.Stdout); err != nil {
		if errors.Is(err, errInvalid) {
			os.Exit(1)
		}

		fmt.Fprintf(os.Stderr, "contentauth %s: %v\n", os.Args[1], err)
		os.Exit(2)
	}
}

func run(command string, args []string, stdout io.Writer) error {
	switch command {
	case "keygen":
		return runKeygen(args, stdout)
	case "fingerprint":
		return runFingerprint(args, stdout)
	case "sign":
		return runSign(args, stdout)
	case "verify":
		return runVerify(args, stdout)
	case "bind":
		return runBind(args, stdout)
	case "verify-bound":
		return runVerifyBound(args, stdout)
	case "serve":
		return runServe(args)
	case "help", "-h", "--help":
		usage(stdout)
		return nil
	default:
		usage(os.Stderr)
		return fmt.Errorf("unknown command %q", command)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: contentauth <keygen|fingerprint|sign|verify|bind|verify-bound|serve> [flags]")
}
