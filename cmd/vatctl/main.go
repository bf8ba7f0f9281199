package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"

	"vatchain/config"
	"vatchain/core/sequencer"
	"vatchain/crypto"
	"vatchain/gateway/middleware"
	"vatchain/indexer"
	"vatchain/storage"
)

const (
	keygenCommand = "keygen"
	tokenCommand  = "token"
	addressCmd    = "address"
	exportCommand = "export"
	defaultConfig = "./config.toml"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case keygenCommand:
		err = runKeygen(os.Args[2:])
	case tokenCommand:
		err = runToken(os.Args[2:])
	case addressCmd:
		err = runAddress(os.Args[2:])
	case exportCommand:
		err = runExport(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runKeygen(args []string) error {
	fs := flag.NewFlagSet(keygenCommand, flag.ExitOnError)
	out := fs.String("out", "", "Write the hex private key to this file instead of stdout")
	force := fs.Bool("force", false, "Overwrite an existing key file or print the key to a non-terminal stdout")
	_ = fs.Parse(args)

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	encoded := hex.EncodeToString(key.Bytes())
	addr := key.PubKey().Address()
	if *out == "" {
		if !term.IsTerminal(int(os.Stdout.Fd())) && !*force {
			return fmt.Errorf("refusing to write a private key to a non-terminal stdout (use -out or -force)")
		}
		fmt.Printf("address: %s\nhex:     %s\nkey:     %s\n", addr.String(), addr.Hex(), encoded)
		return nil
	}
	if _, err := os.Stat(*out); err == nil && !*force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", *out)
	}
	if dir := filepath.Dir(*out); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	if err := os.WriteFile(*out, []byte(encoded+"\n"), 0o600); err != nil {
		return err
	}
	fmt.Printf("address: %s\nkey written to %s\n", addr.String(), *out)
	return nil
}

// runToken issues a bearer token for caller, signed with the secret from the
// node configuration.
func runToken(args []string) error {
	fs := flag.NewFlagSet(tokenCommand, flag.ExitOnError)
	configPath := fs.String("config", defaultConfig, "Path to the vatd configuration file")
	caller := fs.String("caller", "", "Address the token authenticates (defaults to the deployer)")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Auth.Disabled {
		return fmt.Errorf("authentication is disabled in %s", *configPath)
	}
	addr := cfg.DeployerAddress()
	if strings.TrimSpace(*caller) != "" {
		addr, err = crypto.DecodeAddress(*caller)
		if err != nil {
			return fmt.Errorf("invalid caller: %w", err)
		}
	}
	token, err := middleware.IssueToken(cfg.Auth.HMACSecret, cfg.Auth.Issuer, cfg.Auth.Audience, addr, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func runAddress(args []string) error {
	fs := flag.NewFlagSet(addressCmd, flag.ExitOnError)
	label := fs.String("label", "", "Derive the address of a module label such as jug or vow")
	_ = fs.Parse(args)

	var addr crypto.Address
	switch {
	case *label != "":
		addr = crypto.LabelAddress(*label)
	case fs.NArg() == 1:
		decoded, err := crypto.DecodeAddress(fs.Arg(0))
		if err != nil {
			return err
		}
		addr = decoded
	default:
		return fmt.Errorf("expected an address argument or -label")
	}
	fmt.Printf("%s\n%s\n", addr.String(), addr.Hex())
	return nil
}

// runExport writes a range of stored receipts to parquet. The node must be
// stopped since the store is opened directly.
func runExport(args []string) error {
	fs := flag.NewFlagSet(exportCommand, flag.ExitOnError)
	configPath := fs.String("config", defaultConfig, "Path to the vatd configuration file")
	out := fs.String("out", "receipts.parquet", "Destination parquet file")
	from := fs.Uint64("from", 1, "First receipt sequence to export")
	to := fs.Uint64("to", 0, "Last receipt sequence to export (0 for the head)")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := storage.Open(cfg.StorageEngine, cfg.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	log := sequencer.NewReceiptLog(db)
	head, err := log.Verify()
	if err != nil {
		return fmt.Errorf("verify receipt chain: %w", err)
	}
	n, err := indexer.ExportParquet(*out, log, *from, *to)
	if err != nil {
		return err
	}
	fmt.Printf("exported %d receipts to %s (head %d %s)\n", n, *out, head.Sequence, head.Digest)
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: vatctl <command> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  %s   generate a secp256k1 key and print its address\n", keygenCommand)
	fmt.Fprintf(os.Stderr, "  %s    issue an API bearer token from the node's HMAC secret\n", tokenCommand)
	fmt.Fprintf(os.Stderr, "  %s  convert between bech32 and hex, or derive a label address\n", addressCmd)
	fmt.Fprintf(os.Stderr, "  %s   verify the receipt chain and write receipts to parquet\n", exportCommand)
}
