// Command postguard is the reference CLI: encrypt a file to one or more
// attribute policies, or decrypt a .irma envelope by requesting a user
// secret key from a PKG server. Subcommands and stdlib flag parsing
// mirror age's cmd/age.
package main

import (
	"bufio"
	"crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/encryption4all/irmaseal/identity"
	irmaseal "github.com/encryption4all/irmaseal"
	"github.com/encryption4all/irmaseal/kem/kemsim"
	"github.com/encryption4all/irmaseal/pkg/api"
	"github.com/encryption4all/irmaseal/pkg/pgclient"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "encrypt":
		err = runEncrypt(os.Args[2:])
	case "decrypt":
		err = runDecrypt(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "postguard:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: postguard encrypt --input <path> --identity <json> --pkg <url>")
	fmt.Fprintln(os.Stderr, "       postguard decrypt --input <path>.irma --pkg <url>")
}

// recipientSet is the CLI's --identity JSON shape: {recipient_id:
// [attribute, ...], ...}, where each attribute is {"type": "...",
// "value": "..."}.
type recipientSet map[string][]identity.Attribute

func runEncrypt(args []string) error {
	fs := flag.NewFlagSet("encrypt", flag.ExitOnError)
	input := fs.String("input", "", "path to the plaintext file")
	identityJSON := fs.String("identity", "", "JSON object of recipient_id -> [attribute, ...]")
	pkgURL := fs.String("pkg", "", "base URL of the PKG server")
	timestamp := fs.Uint64("timestamp", 0, "identity timestamp (defaults to now if zero)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" || *identityJSON == "" || *pkgURL == "" {
		return fmt.Errorf("--input, --identity and --pkg are required")
	}

	var recipients recipientSet
	if err := json.Unmarshal([]byte(*identityJSON), &recipients); err != nil {
		return fmt.Errorf("malformed --identity JSON: %w", err)
	}

	client := pgclient.New(*pkgURL)
	params, err := client.Parameters()
	if err != nil {
		return fmt.Errorf("fetching PKG parameters: %w", err)
	}

	scheme := kemsim.New()
	mpk, ok := scheme.ParsePublicKey(params.PublicKey)
	if !ok {
		return fmt.Errorf("PKG returned a malformed public key")
	}

	ts := *timestamp
	if ts == 0 {
		ts = uint64(time.Now().Unix())
	}
	policies := make(map[string]identity.RecipientPolicy, len(recipients))
	for id, con := range recipients {
		policies[id] = identity.RecipientPolicy{Timestamp: ts, Con: con}
	}

	in, err := os.Open(*input)
	if err != nil {
		return err
	}
	defer in.Close()

	outPath := *input + ".irma"
	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	if err := irmaseal.Encrypt(out, scheme, mpk, policies, rand.Reader, in); err != nil {
		return fmt.Errorf("sealing envelope: %w", err)
	}
	fmt.Println(outPath)
	return nil
}

func runDecrypt(args []string) error {
	fs := flag.NewFlagSet("decrypt", flag.ExitOnError)
	input := fs.String("input", "", "path to the .irma envelope")
	pkgURL := fs.String("pkg", "", "base URL of the PKG server")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" || *pkgURL == "" {
		return fmt.Errorf("--input and --pkg are required")
	}

	scheme := kemsim.New()

	in, err := os.Open(*input)
	if err != nil {
		return err
	}
	defer in.Close()

	env, err := irmaseal.Open(in, scheme)
	if err != nil {
		return fmt.Errorf("opening envelope: %w", err)
	}

	ids := env.RecipientIDs()
	stdin := bufio.NewScanner(os.Stdin)
	fmt.Println("recipients:", strings.Join(ids, ", "))
	fmt.Print("your recipient identifier: ")
	if !stdin.Scan() {
		return fmt.Errorf("no recipient identifier given")
	}
	id := strings.TrimSpace(stdin.Text())

	policy, ok := env.Policy(id)
	if !ok {
		return fmt.Errorf("unknown recipient identifier %q", id)
	}

	con := make([]identity.Attribute, len(policy.Con))
	for i, a := range policy.Con {
		fmt.Printf("disclosed value for %q: ", a.Type)
		if !stdin.Scan() {
			return fmt.Errorf("no value given for %q", a.Type)
		}
		con[i] = identity.NewAttribute(a.Type, strings.TrimSpace(stdin.Text()))
	}

	client := pgclient.New(*pkgURL)
	sd, err := client.Start("irma", api.KeyRequest{Con: con})
	if err != nil {
		return fmt.Errorf("starting key-issuance session: %w", err)
	}
	fmt.Println("scan or open:", sd.SessionPtr)

	keyBytes, state, err := client.PollForKey("irma", sd.Token, policy.Timestamp)
	if err != nil {
		return fmt.Errorf("polling for key (%s): %w", state, err)
	}

	usk, ok := scheme.ParseUserSecretKey(keyBytes)
	if !ok {
		return fmt.Errorf("PKG returned a malformed user secret key")
	}

	r, err := env.Open(id, scheme, usk)
	if err != nil {
		return fmt.Errorf("decrypting: %w", err)
	}

	outPath := strings.TrimSuffix(*input, ".irma")
	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("writing plaintext: %w", err)
	}
	fmt.Println(outPath)
	return nil
}
