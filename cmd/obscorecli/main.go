// Command obscorecli is a thin driver over the ObscurCore package
// writer/reader (internal/pkgio), the same relationship the teacher's
// cmd/vaultctl has to internal/vault: the core lives in internal/...,
// this just exercises it from a shell.
package main

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/viruswevh/ObscurCore/internal/athena"
	"github.com/viruswevh/ObscurCore/internal/authcipher"
	"github.com/viruswevh/ObscurCore/internal/confirm"
	"github.com/viruswevh/ObscurCore/internal/entropy"
	"github.com/viruswevh/ObscurCore/internal/erase"
	"github.com/viruswevh/ObscurCore/internal/kdf"
	"github.com/viruswevh/ObscurCore/internal/manifest"
	"github.com/viruswevh/ObscurCore/internal/pkgio"
	"github.com/viruswevh/ObscurCore/internal/platform"
	"github.com/viruswevh/ObscurCore/internal/streamfile"
)

func main() {
	if err := platform.DisableCoreDumps(); err != nil {
		log.Printf("obscorecli: core dumps not disabled: %v", err)
	}

	// ---- pack ----
	packCmd := flag.NewFlagSet("pack", flag.ExitOnError)
	packOut := packCmd.String("out", "./out.ocpk", "path to write the package to")
	packScheme := packCmd.String("scheme", "simple", "payload layout scheme: simple, frameshift or fabric")
	packPadMin := packCmd.Uint("pad-min", 0, "frameshift: minimum pad length")
	packPadMax := packCmd.Uint("pad-max", 0, "frameshift: maximum pad length")
	packStripeMin := packCmd.Uint("stripe-min", 64, "fabric: minimum stripe length")
	packStripeMax := packCmd.Uint("stripe-max", 64, "fabric: maximum stripe length")
	var packItems itemFlag
	packCmd.Var(&packItems, "item", "file to pack; repeat for multiple items")

	// ---- unpack ----
	unpackCmd := flag.NewFlagSet("unpack", flag.ExitOnError)
	unpackIn := unpackCmd.String("in", "", "path to the package to read")
	unpackOutDir := unpackCmd.String("out-dir", "./extracted", "directory to write recovered items into")

	// ---- inspect ----
	inspectCmd := flag.NewFlagSet("inspect", flag.ExitOnError)
	inspectIn := inspectCmd.String("in", "", "path to the package to read")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "pack":
		_ = packCmd.Parse(os.Args[2:])
		if len(packItems) == 0 {
			dieIf(errors.New("at least one --item is required"))
		}
		dieIf(cmdPack(*packOut, *packScheme, packItems, uint32(*packPadMin), uint32(*packPadMax), uint32(*packStripeMin), uint32(*packStripeMax)))

	case "unpack":
		_ = unpackCmd.Parse(os.Args[2:])
		if *unpackIn == "" {
			dieIf(errors.New("--in is required"))
		}
		dieIf(cmdUnpack(*unpackIn, *unpackOutDir))

	case "inspect":
		_ = inspectCmd.Parse(os.Args[2:])
		if *inspectIn == "" {
			dieIf(errors.New("--in is required"))
		}
		dieIf(cmdInspect(*inspectIn))

	default:
		usage()
		os.Exit(2)
	}
}

// itemFlag collects repeated -item flags into a slice, the way the
// standard flag package expects a flag.Value for multi-valued flags
// (the teacher never needed one, vaultctl's flags are all single-
// valued, so this is new plumbing, not adapted from teacher code).
type itemFlag []string

func (f *itemFlag) String() string { return strings.Join(*f, ",") }
func (f *itemFlag) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func usage() {
	fmt.Print(`obscorecli commands:

  pack    --out pkg.ocpk --scheme simple|frameshift|fabric --item path [--item path ...]
          [--pad-min N --pad-max N] [--stripe-min N --stripe-max N]
  unpack  --in pkg.ocpk --out-dir ./extracted
  inspect --in pkg.ocpk

Examples:
  obscorecli pack --out pkg.ocpk --scheme fabric --item ./a.bin --item ./b.bin
  obscorecli unpack --in pkg.ocpk --out-dir ./extracted
  obscorecli inspect --in pkg.ocpk
`)
}

// envelopeCipherKeyBytes is the XChaCha20-Poly1305 key size obscorecli
// standardizes on for both the manifest envelope and every item.
const envelopeCipherKeyBytes = 32

func cmdPack(outPath, scheme string, itemPaths []string, padMin, padMax, stripeMin, stripeMax uint32) error {
	passphrase, err := promptSecret("Passphrase: ")
	if err != nil {
		return err
	}
	defer erase.Zero(passphrase)

	items := make([]*manifest.PayloadItem, 0, len(itemPaths))
	for _, path := range itemPaths {
		item, err := buildItem(path)
		if err != nil {
			return err
		}
		items = append(items, item)
	}

	rng, err := entropy.New(entropy.CipherSalsa20)
	if err != nil {
		return err
	}
	payload := manifest.PayloadConfiguration{
		Scheme:     manifest.Scheme(scheme),
		PadMin:     padMin,
		PadMax:     padMax,
		StripeMin:  stripeMin,
		StripeMax:  stripeMax,
		PRNGName:   string(entropy.CipherSalsa20),
		PRNGKey:    rng.Key(),
		PRNGNonce:  rng.Nonce(),
	}

	envelopeCipher, err := randomAEADCipher()
	if err != nil {
		return err
	}
	kdfCfg, err := kdf.DefaultManifestKDF(true, envelopeCipherKeyBytes)
	if err != nil {
		return err
	}
	confirmSalt := make([]byte, 16)
	if _, err := rand.Read(confirmSalt); err != nil {
		return err
	}

	w := pkgio.NewWriter()
	if err := w.SetCrypto(pkgio.CryptoParams{
		Tag:     manifest.CryptoSymmetricOnly,
		PreKey:  passphrase,
		Cipher:  envelopeCipher,
		Auth:    authcipher.AuthConfig{},
		KDF:     kdfCfg,
		Confirm: &confirm.Config{Salt: confirmSalt},
	}); err != nil {
		return err
	}
	if err := w.SetItems(items, payload); err != nil {
		return err
	}

	out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer out.Close()
	if err := w.Write(out); err != nil {
		return err
	}
	fmt.Println("wrote package:", outPath)
	return nil
}

// buildItem resolves a CLI --item path into a PayloadItem with its own
// AEAD cipher instance and a per-item KDF descriptor, deriving its
// working keys from the envelope pre-key rather than carrying explicit
// key material (spec.md §3's two key-resolution paths).
func buildItem(path string) (*manifest.PayloadItem, error) {
	cipherCfg, err := randomAEADCipher()
	if err != nil {
		return nil, err
	}
	kdfCfg, err := kdf.DefaultItemKDF(true, envelopeCipherKeyBytes)
	if err != nil {
		return nil, err
	}
	uuid, err := randomID()
	if err != nil {
		return nil, err
	}
	return &manifest.PayloadItem{
		UUID:          uuid,
		Type:          manifest.ItemBinary,
		Path:          filepath.Base(path),
		Cipher:        cipherCfg,
		Auth:          authcipher.AuthConfig{},
		KeyDerivation: &kdfCfg,
		Source:        streamfile.Source(path),
	}, nil
}

func randomAEADCipher() (authcipher.CipherConfig, error) {
	entry, err := athena.LookupCipher("XChaCha20Poly1305")
	if err != nil {
		return authcipher.CipherConfig{}, err
	}
	iv := make([]byte, entry.NonceBytes)
	if _, err := rand.Read(iv); err != nil {
		return authcipher.CipherConfig{}, err
	}
	return authcipher.CipherConfig{
		Kind:        athena.CipherAEAD,
		Algorithm:   entry.Name,
		KeyBits:     envelopeCipherKeyBytes * 8,
		IV:          iv,
		AEADMacBits: entry.AEADMacBits,
	}, nil
}

func cmdUnpack(inPath, outDir string) error {
	passphrase, err := promptSecret("Passphrase: ")
	if err != nil {
		return err
	}
	defer erase.Zero(passphrase)

	in, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(outDir, 0700); err != nil {
		return err
	}

	rd := pkgio.NewReader()
	m, err := rd.Open(in, pkgio.CryptoParams{Tag: manifest.CryptoSymmetricOnly, PreKey: passphrase})
	if err != nil {
		return err
	}

	if err := rd.Extract(func(item *manifest.PayloadItem) error {
		item.Sink = streamfile.Sink(filepath.Join(outDir, item.Path))
		return nil
	}); err != nil {
		return err
	}

	fmt.Printf("extracted %d item(s) into %s\n", len(m.Items), outDir)
	return nil
}

// manifestView and itemView are redacted JSON projections of the
// decoded manifest for `inspect`: CipherKey/AuthKey (the only fields
// that could ever hold raw symmetric key material) are deliberately
// left out, and so are the key-derivation and key-confirmation
// descriptors, per spec.md's "never print key material" rule for this
// subcommand.
type manifestView struct {
	Scheme string      `json:"scheme"`
	Items  []itemView  `json:"items"`
}

type itemView struct {
	UUID            string `json:"uuid"`
	Type            string `json:"type"`
	Path            string `json:"path"`
	ExternalLength  uint64 `json:"external_length"`
	InternalLength  uint64 `json:"internal_length"`
	CipherAlgorithm string `json:"cipher_algorithm"`
	ExplicitKeys    bool   `json:"explicit_keys"`
}

func cmdInspect(inPath string) error {
	passphrase, err := promptSecret("Passphrase: ")
	if err != nil {
		return err
	}
	defer erase.Zero(passphrase)

	in, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	rd := pkgio.NewReader()
	m, err := rd.Open(in, pkgio.CryptoParams{Tag: manifest.CryptoSymmetricOnly, PreKey: passphrase})
	if err != nil {
		return err
	}
	rd.Close() // inspect never extracts payload

	view := manifestView{Scheme: string(m.Payload.Scheme)}
	for _, item := range m.Items {
		view.Items = append(view.Items, itemView{
			UUID:            item.UUID,
			Type:            string(item.Type),
			Path:            item.Path,
			ExternalLength:  item.ExternalLength,
			InternalLength:  item.InternalLength,
			CipherAlgorithm: item.Cipher.Algorithm,
			ExplicitKeys:    item.HasExplicitKeys(),
		})
	}
	b, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func promptSecret(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	br := bufio.NewReader(os.Stdin)
	secret, err := br.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	if len(secret) > 0 && secret[len(secret)-1] == '\n' {
		secret = secret[:len(secret)-1]
	}
	return secret, nil
}

func randomID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func dieIf(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
