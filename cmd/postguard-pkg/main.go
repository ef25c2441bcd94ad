// Command postguard-pkg runs the Private Key Generator's HTTP server:
// it reads a master key pair from disk and serves the §4.6 protocol.
// Flags mirror age's cmd/age argument style (stdlib flag, no config-file
// framework) rather than a flags/viper-style configuration layer.
package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/encryption4all/irmaseal/kem"
	"github.com/encryption4all/irmaseal/kem/kemsim"
	"github.com/encryption4all/irmaseal/pkg/pkgserver"
)

func main() {
	host := flag.String("host", "127.0.0.1", "address to listen on")
	port := flag.String("port", "8080", "port to listen on")
	ibePublic := flag.String("ibe-public", "ibe_public", "path to the IBE master public key file")
	ibeSecret := flag.String("ibe-secret", "ibe_secret", "path to the IBE master secret key file")
	generate := flag.Bool("generate", false, "generate a fresh key pair at ibe-public/ibe-secret if they do not exist")
	flag.Parse()

	if err := run(*host, *port, *ibePublic, *ibeSecret, *generate); err != nil {
		fmt.Fprintln(os.Stderr, "postguard-pkg:", err)
		os.Exit(1)
	}
}

func run(host, port, ibePublicPath, ibeSecretPath string, generate bool) error {
	scheme := kemsim.New()

	mpk, msk, err := loadOrGenerateKeys(scheme, ibePublicPath, ibeSecretPath, generate)
	if err != nil {
		return err
	}

	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	srv, err := pkgserver.New(scheme, mpk, msk, log)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(host, port)
	log.Info("postguard-pkg listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, srv.Router())
}

func loadOrGenerateKeys(scheme kem.Scheme, pkPath, mskPath string, generate bool) (kem.PublicKey, kem.MasterSecretKey, error) {
	pkBytes, pkErr := os.ReadFile(pkPath)
	mskBytes, mskErr := os.ReadFile(mskPath)

	if pkErr == nil && mskErr == nil {
		pk, ok := scheme.ParsePublicKey(pkBytes)
		if !ok {
			return nil, nil, fmt.Errorf("postguard-pkg: malformed public key at %s", pkPath)
		}
		msk, ok := parseMasterSecretKey(scheme, mskBytes)
		if !ok {
			return nil, nil, fmt.Errorf("postguard-pkg: malformed master secret key at %s", mskPath)
		}
		return pk, msk, nil
	}

	if !generate {
		return nil, nil, fmt.Errorf("postguard-pkg: key files not found at %s/%s; pass -generate to create them", pkPath, mskPath)
	}

	pk, msk, err := scheme.Setup(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	if err := os.WriteFile(pkPath, pk.Bytes(), 0o644); err != nil {
		return nil, nil, err
	}
	if err := os.WriteFile(mskPath, msk.Bytes(), 0o600); err != nil {
		return nil, nil, err
	}
	return pk, msk, nil
}

// parseMasterSecretKey works around kem.Scheme not exposing a
// ParseMasterSecretKey method: kemsim's master secret key shares its
// public key's byte encoding, which is the case for exactly this
// simulated scheme and not assumed of real KEMs.
func parseMasterSecretKey(scheme kem.Scheme, b []byte) (kem.MasterSecretKey, bool) {
	sim, ok := scheme.(kemsim.Scheme)
	if !ok {
		return nil, false
	}
	return sim.ParseMasterSecretKey(b)
}
