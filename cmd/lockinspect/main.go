package main

import (
	"fmt"
	"os"

	"github.com/saylorsolutions/keylock/cmd/internal"
	"github.com/saylorsolutions/keylock/pkg/lock"
	"github.com/saylorsolutions/keylock/pkg/passcache"
	"github.com/saylorsolutions/keylock/pkg/pki"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

var version = "dev"

func main() {
	var (
		helpFlag    bool
		versionFlag bool
		verboseFlag bool
		resolveFlag bool
		kindFlag    string
		privFlag    string
		pubFlag     string
	)
	flags := flag.NewFlagSet("lockinspect", flag.ContinueOnError)
	flags.BoolVarP(&helpFlag, "help", "h", false, "Prints this usage information.")
	flags.BoolVar(&versionFlag, "version", false, "Prints the version of lockinspect.")
	flags.BoolVarP(&verboseFlag, "verbose", "v", false, "Enables debug logging to stderr.")
	flags.BoolVarP(&resolveFlag, "resolve", "r", false, "Resolve each lock with a password, which is prompted for only when no earlier password works.")
	flags.StringVarP(&kindFlag, "kind", "k", "", "Overrides lock kind detection. One of 'factory', 'keyset', or 'keypair'.")
	flags.StringVar(&privFlag, "priv", "", "Private key file used to resolve key pair locks.")
	flags.StringVar(&pubFlag, "pub", "", "Public key file matching --priv. Required when --priv is given.")
	flags.Usage = func() {
		fmt.Printf(`
lockinspect describes the structure of lock files, and optionally resolves them to verify a password.
Nothing secret is ever printed, only the lock's parameters and the shape of what it locks.
Verifier hashes are shown by length only.

USAGE:  lockinspect [FLAGS] FILE...

ARGS:
    FILE is a file containing raw lock bytes. More than one may be given.

FLAGS:
%s
NOTES:
    Key set and key pair locks are resolved with the default locking factory.
    Passwords are kept encrypted in memory for the rest of the run, so locks sharing a password only prompt once.
`, flags.FlagUsages())
	}
	if len(os.Args) == 1 {
		flags.Usage()
		return
	}
	if err := flags.Parse(os.Args[1:]); err != nil {
		flags.Usage()
		internal.Fatal("Error parsing flags: %v", err)
	}
	if helpFlag {
		flags.Usage()
		return
	}
	if versionFlag {
		fmt.Println(version)
		return
	}
	if flags.NArg() == 0 {
		internal.Fatal("Missing required FILE argument")
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if verboseFlag {
		log.SetLevel(logrus.DebugLevel)
	}

	var forced lock.Kind
	if len(kindFlag) > 0 {
		k, err := lock.ParseKind(kindFlag)
		if err != nil {
			internal.Fatal("Invalid --kind: %v", err)
		}
		forced = k
	}

	var res *resolver
	if resolveFlag {
		res = &resolver{
			prompt: func() ([]byte, error) {
				return internal.ReadPassword("Password: ")
			},
		}
		if len(privFlag) > 0 {
			if len(pubFlag) == 0 {
				internal.Fatal("Missing --pub, which is required with --priv")
			}
			kp, err := pki.LoadKeypairFromFile(privFlag, pubFlag)
			if err != nil {
				internal.Fatal("Failed to load key pair: %v", err)
			}
			res.keypair = kp
		}
		cache, err := passcache.New(passcache.WithLogger(log))
		if err != nil {
			internal.Fatal("Failed to create password cache: %v", err)
		}
		res.cache = cache
	}

	var failed bool
	for _, path := range flags.Args() {
		if err := inspect(log, res, forced, path); err != nil {
			log.WithField("file", path).Error(err)
			failed = true
		}
	}
	if res != nil {
		res.cache.Destroy()
	}
	if failed {
		internal.Fatal("One or more locks could not be inspected")
	}
}

func inspect(log logrus.FieldLogger, res *resolver, forced lock.Kind, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	kind := forced
	if kind == 0 {
		if kind, err = detectKind(data); err != nil {
			return err
		}
		log.WithField("kind", kind.String()).Debug("Detected lock kind")
	}
	desc, err := describe(kind, data)
	if err != nil {
		return err
	}
	fmt.Printf("%s:\n%s", path, desc)
	if res != nil {
		resolved, err := res.resolve(kind, data)
		if err != nil {
			return err
		}
		fmt.Print(resolved)
	}
	fmt.Println()
	return nil
}
