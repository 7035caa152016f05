// Command keygen generates the EC P-256 keypairs the server loads at
// startup: export signing, next-day JWT, response hashing, upload
// verification.
package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/openexposure/gaen-server/internal/keyvault"
)

func main() {
	app := &cli.App{
		Name:  "keygen",
		Usage: "generate EC P-256 keypairs as PEM files",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out-dir", Value: ".", Usage: "directory for the generated PEM files"},
			&cli.StringFlag{Name: "name", Value: "gaen", Usage: "base name; writes <name>.pem and <name>_pub.pem"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cliCtx *cli.Context) error {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}

	privPEM, err := keyvault.EncodePKCS8PEM(priv)
	if err != nil {
		return err
	}
	pubPEM, err := keyvault.EncodePublicPEM(&priv.PublicKey)
	if err != nil {
		return err
	}

	dir := cliCtx.String("out-dir")
	name := cliCtx.String("name")
	privPath := filepath.Join(dir, name+".pem")
	pubPath := filepath.Join(dir, name+"_pub.pem")

	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		return err
	}
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		return err
	}

	fmt.Printf("wrote %s and %s\n", privPath, pubPath)
	return nil
}
