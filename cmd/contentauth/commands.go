package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ourstudio-se/go-contentauth"
)

func runKeygen(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	out := fs.String("out", ".", "directory to write private.pem and public.pem to")
	if err := fs.Parse(args); err != nil {
		return err
	}

	kp, err := contentauth.GenerateKeyPair()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(*out, 0o700); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(*out, "private.pem"), []byte(kp.PrivateKey), 0o600); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(*out, "public.pem"), []byte(kp.PublicKey), 0o644); err != nil {
		return err
	}

	fmt.Fprintln(stdout, kp.Fingerprint())
	return nil
}

func runFingerprint(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("fingerprint", flag.ContinueOnError)
	pub := fs.String("pub", "", "public key PEM file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	publicKey, err := readRequired(*pub, "-pub")
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, contentauth.Fingerprint(publicKey))
	return nil
}

func runSign(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	key := fs.String("key", "", "private key PEM file")
	message := fs.String("message", "", "message to sign")
	file := fs.String("file", "", "file holding the message to sign")
	if err := fs.Parse(args); err != nil {
		return err
	}

	privateKey, err := readRequired(*key, "-key")
	if err != nil {
		return err
	}

	msg, err := textOrFile(*message, *file)
	if err != nil {
		return err
	}

	sig, err := contentauth.SignMessage(privateKey, msg)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, sig)
	return nil
}

func runVerify(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	pub := fs.String("pub", "", "public key PEM file")
	sig := fs.String("sig", "", "base64 signature")
	message := fs.String("message", "", "signed message")
	file := fs.String("file", "", "file holding the signed message")
	if err := fs.Parse(args); err != nil {
		return err
	}

	publicKey, err := readRequired(*pub, "-pub")
	if err != nil {
		return err
	}

	msg, err := textOrFile(*message, *file)
	if err != nil {
		return err
	}

	return report(stdout, contentauth.VerifySignature(publicKey, msg, *sig))
}

func runBind(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("bind", flag.ContinueOnError)
	key := fs.String("key", "", "private key PEM file")
	fingerprint := fs.String("fingerprint", "", "fingerprint to bind (default: fingerprint of the key)")
	content := fs.String("content", "", "content to bind")
	file := fs.String("file", "", "file holding the content to bind")
	if err := fs.Parse(args); err != nil {
		return err
	}

	privateKey, err := readRequired(*key, "-key")
	if err != nil {
		return err
	}

	fp := *fingerprint
	if fp == "" {
		publicKey, err := contentauth.PublicKeyFromPrivate(privateKey)
		if err != nil {
			return err
		}
		fp = contentauth.Fingerprint(publicKey)
	}

	text, err := textOrFile(*content, *file)
	if err != nil {
		return err
	}

	sig, err := contentauth.BindContent(privateKey, fp, text)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, sig)
	return nil
}

func runVerifyBound(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("verify-bound", flag.ContinueOnError)
	pub := fs.String("pub", "", "public key PEM file")
	sig := fs.String("sig", "", "base64 signature")
	fingerprint := fs.String("fingerprint", "", "bound fingerprint (default: fingerprint of the public key)")
	content := fs.String("content", "", "bound content")
	file := fs.String("file", "", "file holding the bound content")
	if err := fs.Parse(args); err != nil {
		return err
	}

	publicKey, err := readRequired(*pub, "-pub")
	if err != nil {
		return err
	}

	fp := *fingerprint
	if fp == "" {
		fp = contentauth.Fingerprint(publicKey)
	}

	text, err := textOrFile(*content, *file)
	if err != nil {
		return err
	}

	return report(stdout, contentauth.VerifyBoundContent(publicKey, *sig, fp, text))
}

func report(stdout io.Writer, valid bool) error {
	if !valid {
		fmt.Fprintln(stdout, "invalid")
		return errInvalid
	}

	fmt.Fprintln(stdout, "valid")
	return nil
}

func readRequired(path, flagName string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%s is required", flagName)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	return string(b), nil
}

func textOrFile(text, path string) (string, error) {
	if text != "" && path != "" {
		return "", errors.New("give either the text or -file, not both")
	}

	if path == "" {
		return text, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	return string(b), nil
}
